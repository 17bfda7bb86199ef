package detection

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/birdnet-scout/internal/errors"
)

// Default percent thresholds and timezone used when nothing is configured.
const (
	DefaultMinAudioConfidence    = 70
	DefaultMinLocationConfidence = 1
	DefaultMinSampleThreshold    = 2
	DefaultTimezone              = "US/Pacific"
)

// Location is a recording site in decimal degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String renders the location as "lat,lon", the form stored with detections.
func (l Location) String() string {
	return strconv.FormatFloat(l.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(l.Lon, 'f', -1, 64)
}

// Validate checks coordinate ranges.
func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", l.Lat)
	}
	if l.Lon < -180 || l.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", l.Lon)
	}
	return nil
}

// ParseLocation parses "lat,lon". An empty string yields a nil location.
func ParseLocation(s string) (*Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return nil, fmt.Errorf("location %q is not in lat,lon form", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}

	loc := &Location{Lat: lat, Lon: lon}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	return loc, nil
}

// Config is the normalized configuration snapshot for one pipeline cycle.
// Confidence thresholds are fractions in [0,1].
type Config struct {
	Location              *Location
	MinAudioConfidence    float64
	MinLocationConfidence float64
	MinSampleThreshold    int
	Timezone              *time.Location
}

// PercentConfig is the wire and storage shape of Config with thresholds in
// whole percent.
type PercentConfig struct {
	Location              *Location `json:"location"`
	MinAudioConfidence    int       `json:"min_audio_confidence"`
	MinLocationConfidence int       `json:"min_location_confidence"`
	MinSampleThreshold    int       `json:"min_sample_threshold"`
	Timezone              string    `json:"timezone"`
}

// DefaultPercentConfig returns the stock thresholds with no location.
func DefaultPercentConfig() PercentConfig {
	return PercentConfig{
		MinAudioConfidence:    DefaultMinAudioConfidence,
		MinLocationConfidence: DefaultMinLocationConfidence,
		MinSampleThreshold:    DefaultMinSampleThreshold,
		Timezone:              DefaultTimezone,
	}
}

// Normalize validates the percent form and converts it to a Config.
func (p PercentConfig) Normalize() (Config, error) {
	var problems []string

	if p.MinAudioConfidence < 0 || p.MinAudioConfidence > 100 {
		problems = append(problems, fmt.Sprintf("min_audio_confidence %d out of range [0, 100]", p.MinAudioConfidence))
	}
	if p.MinLocationConfidence < 0 || p.MinLocationConfidence > 100 {
		problems = append(problems, fmt.Sprintf("min_location_confidence %d out of range [0, 100]", p.MinLocationConfidence))
	}
	if p.MinSampleThreshold < 1 {
		problems = append(problems, fmt.Sprintf("min_sample_threshold %d must be at least 1", p.MinSampleThreshold))
	}
	if p.Location != nil {
		if err := p.Location.Validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}

	tzName := p.Timezone
	if tzName == "" {
		tzName = DefaultTimezone
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		problems = append(problems, fmt.Sprintf("unknown timezone %q", tzName))
	}

	if len(problems) > 0 {
		return Config{}, errors.Newf("invalid detection config: %s", strings.Join(problems, "; ")).
			Component("detection").
			Category(errors.CategoryValidation).
			Build()
	}

	cfg := Config{
		MinAudioConfidence:    float64(p.MinAudioConfidence) / 100,
		MinLocationConfidence: float64(p.MinLocationConfidence) / 100,
		MinSampleThreshold:    p.MinSampleThreshold,
		Timezone:              tz,
	}
	if p.Location != nil {
		loc := *p.Location
		cfg.Location = &loc
	}
	return cfg, nil
}
