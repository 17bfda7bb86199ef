package detection

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// wireLocation accepts {"lat": .., "lon": ..}, {} and null.
type wireLocation struct {
	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`
}

type percentConfigJSON struct {
	Location              *wireLocation `json:"location"`
	MinAudioConfidence    int           `json:"min_audio_confidence"`
	MinLocationConfidence int           `json:"min_location_confidence"`
	MinSampleThreshold    int           `json:"min_sample_threshold"`
	Timezone              string        `json:"timezone"`
}

// MarshalJSON writes a missing location as {}.
func (p PercentConfig) MarshalJSON() ([]byte, error) {
	out := percentConfigJSON{
		Location:              &wireLocation{},
		MinAudioConfidence:    p.MinAudioConfidence,
		MinLocationConfidence: p.MinLocationConfidence,
		MinSampleThreshold:    p.MinSampleThreshold,
		Timezone:              p.Timezone,
	}
	if p.Location != nil {
		lat, lon := p.Location.Lat, p.Location.Lon
		out.Location = &wireLocation{Lat: &lat, Lon: &lon}
	}
	return json.Marshal(out)
}

// UnmarshalJSON treats a location without both lat and lon as unset.
func (p *PercentConfig) UnmarshalJSON(data []byte) error {
	var in percentConfigJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	*p = PercentConfig{
		MinAudioConfidence:    in.MinAudioConfidence,
		MinLocationConfidence: in.MinLocationConfidence,
		MinSampleThreshold:    in.MinSampleThreshold,
		Timezone:              in.Timezone,
	}
	if in.Location != nil && in.Location.Lat != nil && in.Location.Lon != nil {
		p.Location = &Location{Lat: *in.Location.Lat, Lon: *in.Location.Lon}
	}
	return nil
}

// Payload is the ingestion wire form of a Detection.
type Payload struct {
	RecordingStart     string  `json:"recording_start" validate:"required"`
	RecordingEnd       string  `json:"recording_end" validate:"required"`
	Interval           string  `json:"interval" validate:"required"`
	ScientificName     string  `json:"scientific_name" validate:"required"`
	CommonName         string  `json:"common_name" validate:"required"`
	AudioConfidence    float64 `json:"audio_confidence" validate:"gte=0,lte=1"`
	LocationConfidence float64 `json:"location_confidence" validate:"gte=0,lte=1"`
	Location           *string `json:"location"`
}

// PayloadRequiredFields lists the keys every ingestion element must carry,
// in the order they are checked.
var PayloadRequiredFields = []string{
	"recording_start",
	"recording_end",
	"interval",
	"scientific_name",
	"common_name",
	"audio_confidence",
	"location_confidence",
}

// ToPayload converts a Detection to its wire form.
func ToPayload(d *Detection) Payload {
	p := Payload{
		RecordingStart:     d.RecordingStart.UTC().Format(time.RFC3339),
		RecordingEnd:       d.RecordingEnd.UTC().Format(time.RFC3339),
		Interval:           formatSeconds(d.IntervalStart) + "," + formatSeconds(d.IntervalEnd),
		ScientificName:     d.Scientific,
		CommonName:         d.Common,
		AudioConfidence:    d.AudioConfidence,
		LocationConfidence: d.LocationConfidence,
	}
	if d.Location != nil {
		s := d.Location.String()
		p.Location = &s
	}
	return p
}

// Detection converts a payload back, stamping CreatedAt with now.
func (p *Payload) Detection(now time.Time) (Detection, error) {
	start, err := time.Parse(time.RFC3339, p.RecordingStart)
	if err != nil {
		return Detection{}, fmt.Errorf("invalid recording_start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, p.RecordingEnd)
	if err != nil {
		return Detection{}, fmt.Errorf("invalid recording_end: %w", err)
	}
	if end.Before(start) {
		return Detection{}, fmt.Errorf("recording_end before recording_start")
	}

	iStart, iEnd, err := parseInterval(p.Interval)
	if err != nil {
		return Detection{}, err
	}

	d := Detection{
		RecordingStart:     start,
		RecordingEnd:       end,
		IntervalStart:      iStart,
		IntervalEnd:        iEnd,
		Taxon:              Taxon{Scientific: p.ScientificName, Common: p.CommonName},
		AudioConfidence:    p.AudioConfidence,
		LocationConfidence: p.LocationConfidence,
		CreatedAt:          now,
	}
	if p.Location != nil {
		loc, err := ParseLocation(*p.Location)
		if err != nil {
			return Detection{}, err
		}
		d.Location = loc
	}
	return d, nil
}

func parseInterval(s string) (start, end float64, err error) {
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("interval %q is not in start,end form", s)
	}
	if start, err = strconv.ParseFloat(strings.TrimSpace(a), 64); err != nil {
		return 0, 0, fmt.Errorf("invalid interval start in %q: %w", s, err)
	}
	if end, err = strconv.ParseFloat(strings.TrimSpace(b), 64); err != nil {
		return 0, 0, fmt.Errorf("invalid interval end in %q: %w", s, err)
	}
	if end < start {
		return 0, 0, fmt.Errorf("interval %q ends before it starts", s)
	}
	return start, end, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
