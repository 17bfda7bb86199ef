package detection

import (
	"maps"
	"slices"
	"time"
)

// RawInterval is one classifier window: offsets in seconds from clip start
// and per-label scores.
type RawInterval struct {
	Start  float64
	End    float64
	Scores map[string]float64
}

// Detection is an admitted candidate. Values are never modified after Build.
type Detection struct {
	RecordingStart time.Time `json:"recording_start"`
	RecordingEnd   time.Time `json:"recording_end"`
	IntervalStart  float64   `json:"interval_start"`
	IntervalEnd    float64   `json:"interval_end"`
	Taxon
	AudioConfidence    float64   `json:"audio_confidence"`
	LocationConfidence float64   `json:"location_confidence"`
	Location           *Location `json:"location,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// BuildStats summarizes one Build call.
type BuildStats struct {
	Candidates      int
	Admitted        int
	MalformedLabels int
}

// Build evaluates every (interval, label, score) of a classified clip
// against the filter and returns the admitted detections, ordered by
// interval start and then label. A label missing from prior gets location
// confidence 0. A nil prior means none could be computed for the run: the
// location check is skipped while detections still carry cfg.Location.
func Build(clip Clip, raw []RawInterval, prior map[string]float64, cfg Config, now time.Time) ([]Detection, BuildStats) {
	var stats BuildStats

	admitCfg := cfg
	if prior == nil {
		admitCfg.Location = nil
	}

	intervals := slices.Clone(raw)
	slices.SortStableFunc(intervals, func(a, b RawInterval) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})

	var out []Detection
	for _, interval := range intervals {
		for _, label := range slices.Sorted(maps.Keys(interval.Scores)) {
			stats.Candidates++

			taxon, err := ParseTaxon(label)
			if err != nil {
				stats.MalformedLabels++
				continue
			}

			audio := interval.Scores[label]
			loc := prior[label]
			if !Admit(taxon, audio, loc, admitCfg) {
				continue
			}

			d := Detection{
				RecordingStart:     clip.Start,
				RecordingEnd:       clip.End,
				IntervalStart:      interval.Start,
				IntervalEnd:        interval.End,
				Taxon:              taxon,
				AudioConfidence:    audio,
				LocationConfidence: loc,
				CreatedAt:          now,
			}
			if cfg.Location != nil {
				l := *cfg.Location
				d.Location = &l
			}
			out = append(out, d)
		}
	}

	stats.Admitted = len(out)
	return out, stats
}
