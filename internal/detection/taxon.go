// Package detection turns raw classifier scores into admitted detections.
//
// It holds the pure parts of the pipeline: the taxon parser, the admission
// filter, clip key parsing and the detection builder. Nothing in here does
// I/O or logging; callers pass configuration and the clock explicitly.
package detection

import (
	"strings"

	"github.com/tphakala/birdnet-scout/internal/errors"
)

// ErrMalformedLabel is returned by ParseTaxon for labels that are not
// exactly "Scientific_Common".
var ErrMalformedLabel = errors.NewStd("malformed taxon label")

// Taxon identifies a species by scientific and common name.
type Taxon struct {
	Scientific string `json:"scientific_name"`
	Common     string `json:"common_name"`
}

// ParseTaxon splits a composite classifier label such as
// "Turdus migratorius_American Robin".
func ParseTaxon(label string) (Taxon, error) {
	scientific, common, ok := strings.Cut(label, "_")
	if !ok || scientific == "" || common == "" || strings.Contains(common, "_") {
		return Taxon{}, errors.New(ErrMalformedLabel).
			Component("detection").
			Category(errors.CategoryValidation).
			Context("label", label).
			Build()
	}
	return Taxon{Scientific: scientific, Common: common}, nil
}

// Label returns the composite form used as key in classifier output and priors.
func (t Taxon) Label() string {
	return t.Scientific + "_" + t.Common
}

func (t Taxon) String() string {
	return t.Common + " (" + t.Scientific + ")"
}
