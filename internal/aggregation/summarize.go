// Package aggregation folds stored detections into confirmed per-day
// observations.
package aggregation

import (
	"cmp"
	"iter"
	"slices"
	"time"

	"github.com/tphakala/birdnet-scout/internal/detection"
)

// DateLayout is the bucket key format.
const DateLayout = "2006-01-02"

// Observation is a confirmed sighting of one species at one location on one
// local calendar day.
type Observation struct {
	detection.Taxon
	SampleCount           int       `json:"sample_count"`
	MeanAudioConfidence   float64   `json:"audio_confidence"`
	MaxLocationConfidence float64   `json:"location_confidence"`
	Location              string    `json:"location"`
	LastDetectedAt        time.Time `json:"last_detected_at"`
	Date                  string    `json:"date"`
	Link                  string    `json:"link"`
}

// Summary holds observations bucketed by date. Dates lists each bucket once,
// in order of first appearance in the sorted observation list.
type Summary struct {
	Dates        []string                 `json:"dates"`
	Observations map[string][]Observation `json:"observations"`
}

// Len returns the number of observations across all dates.
func (s Summary) Len() int {
	n := 0
	for _, obs := range s.Observations {
		n += len(obs)
	}
	return n
}

type groupKey struct {
	scientific string
	common     string
	location   string
	date       string
}

type group struct {
	count    int
	audioSum float64
	maxLoc   float64
	last     time.Time
}

// Summarize groups records by species, location and local date in tz and
// returns the groups with at least threshold samples.
func Summarize(records []detection.Detection, threshold int, tz *time.Location) Summary {
	return SummarizeSeq(slices.Values(records), threshold, tz)
}

// SummarizeSeq is Summarize over an iterator.
func SummarizeSeq(records iter.Seq[detection.Detection], threshold int, tz *time.Location) Summary {
	if tz == nil {
		tz = time.UTC
	}

	groups := make(map[groupKey]*group)
	for d := range records {
		key := groupKey{
			scientific: d.Scientific,
			common:     d.Common,
			location:   locationKey(d.Location),
			date:       d.RecordingStart.In(tz).Format(DateLayout),
		}
		g, ok := groups[key]
		if !ok {
			g = &group{}
			groups[key] = g
		}
		g.count++
		g.audioSum += d.AudioConfidence
		if g.count == 1 || d.LocationConfidence > g.maxLoc {
			g.maxLoc = d.LocationConfidence
		}
		if d.RecordingStart.After(g.last) {
			g.last = d.RecordingStart
		}
	}

	observations := make([]Observation, 0, len(groups))
	for key, g := range groups {
		if g.count < threshold {
			continue
		}
		observations = append(observations, Observation{
			Taxon:                 detection.Taxon{Scientific: key.scientific, Common: key.common},
			SampleCount:           g.count,
			MeanAudioConfidence:   g.audioSum / float64(g.count),
			MaxLocationConfidence: g.maxLoc,
			Location:              key.location,
			LastDetectedAt:        g.last,
			Date:                  key.date,
			Link:                  Link(key.common),
		})
	}

	slices.SortFunc(observations, func(a, b Observation) int {
		if c := b.LastDetectedAt.Compare(a.LastDetectedAt); c != 0 {
			return c
		}
		return cmp.Or(
			cmp.Compare(a.Scientific, b.Scientific),
			cmp.Compare(a.Location, b.Location),
			cmp.Compare(a.Common, b.Common),
			cmp.Compare(a.Date, b.Date),
		)
	})

	summary := Summary{
		Dates:        []string{},
		Observations: make(map[string][]Observation),
	}
	for _, o := range observations {
		if _, seen := summary.Observations[o.Date]; !seen {
			summary.Dates = append(summary.Dates, o.Date)
		}
		summary.Observations[o.Date] = append(summary.Observations[o.Date], o)
	}

	return summary
}

func locationKey(l *detection.Location) string {
	if l == nil {
		return ""
	}
	return l.String()
}
