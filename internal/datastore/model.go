// model.go defines the persisted records
package datastore

import (
	"time"

	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// DetectionRecord is one stored detection.
type DetectionRecord struct {
	ID                 uint      `gorm:"primaryKey"`
	RecordingStart     time.Time `gorm:"not null;index:idx_detections_recording_start"`
	RecordingEnd       time.Time `gorm:"not null"`
	IntervalStart      float64
	IntervalEnd        float64
	ScientificName     string  `gorm:"size:255;not null;index:idx_detections_sciname"`
	CommonName         string  `gorm:"size:255;not null"`
	AudioConfidence    float64 `gorm:"not null;check:chk_detections_audio,audio_confidence >= 0 AND audio_confidence <= 1"`
	LocationConfidence float64 `gorm:"not null;check:chk_detections_location,location_confidence >= 0 AND location_confidence <= 1"`
	Location           string  `gorm:"size:64"` // "lat,lon", empty when unknown
	CreatedAt          time.Time
}

// TableName sets the table name.
func (DetectionRecord) TableName() string { return "detections" }

// ConfigRecord is the single stored operator config row.
type ConfigRecord struct {
	ID                    uint `gorm:"primaryKey"`
	Latitude              *float64
	Longitude             *float64
	MinAudioConfidence    int    `gorm:"not null"`
	MinLocationConfidence int    `gorm:"not null"`
	MinSampleThreshold    int    `gorm:"not null"`
	Timezone              string `gorm:"size:64;not null"`
	LastIP                string `gorm:"size:64"` // public IP used for the last geolocation lookup
	UpdatedAt             time.Time
}

// TableName sets the table name.
func (ConfigRecord) TableName() string { return "configs" }

// configRecordID is the primary key of the only config row
const configRecordID = 1

// PercentConfig returns the record as the wire config shape.
func (c *ConfigRecord) PercentConfig() detection.PercentConfig {
	p := detection.PercentConfig{
		MinAudioConfidence:    c.MinAudioConfidence,
		MinLocationConfidence: c.MinLocationConfidence,
		MinSampleThreshold:    c.MinSampleThreshold,
		Timezone:              c.Timezone,
	}
	if c.Latitude != nil && c.Longitude != nil {
		p.Location = &detection.Location{Lat: *c.Latitude, Lon: *c.Longitude}
	}
	return p
}

// Apply copies p into the record. A nil location clears the stored one.
func (c *ConfigRecord) Apply(p detection.PercentConfig) {
	c.MinAudioConfidence = p.MinAudioConfidence
	c.MinLocationConfidence = p.MinLocationConfidence
	c.MinSampleThreshold = p.MinSampleThreshold
	c.Timezone = p.Timezone
	c.SetLocation(p.Location)
}

// SetLocation replaces the stored coordinates.
func (c *ConfigRecord) SetLocation(l *detection.Location) {
	if l == nil {
		c.Latitude, c.Longitude = nil, nil
		return
	}
	lat, lon := l.Lat, l.Lon
	c.Latitude, c.Longitude = &lat, &lon
}

func toRecord(d *detection.Detection) DetectionRecord {
	r := DetectionRecord{
		RecordingStart:     d.RecordingStart.UTC(),
		RecordingEnd:       d.RecordingEnd.UTC(),
		IntervalStart:      d.IntervalStart,
		IntervalEnd:        d.IntervalEnd,
		ScientificName:     d.Scientific,
		CommonName:         d.Common,
		AudioConfidence:    d.AudioConfidence,
		LocationConfidence: d.LocationConfidence,
		CreatedAt:          d.CreatedAt.UTC(),
	}
	if d.Location != nil {
		r.Location = d.Location.String()
	}
	return r
}

func fromRecord(r *DetectionRecord) detection.Detection {
	d := detection.Detection{
		RecordingStart:     r.RecordingStart,
		RecordingEnd:       r.RecordingEnd,
		IntervalStart:      r.IntervalStart,
		IntervalEnd:        r.IntervalEnd,
		Taxon:              detection.Taxon{Scientific: r.ScientificName, Common: r.CommonName},
		AudioConfidence:    r.AudioConfidence,
		LocationConfidence: r.LocationConfidence,
		CreatedAt:          r.CreatedAt,
	}
	if r.Location != "" {
		loc, err := detection.ParseLocation(r.Location)
		if err != nil {
			GetLogger().Warn("Ignoring unparsable stored location",
				logger.String("location", r.Location),
				logger.Error(err))
		}
		d.Location = loc
	}
	return d
}
