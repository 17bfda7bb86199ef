package analysis

import (
	"context"
	"time"

	"github.com/tphakala/birdnet-scout/internal/birdnet"
	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/geolocation"
)

// ConfigSource supplies the detection config at the start of each cycle.
type ConfigSource interface {
	FetchConfig(ctx context.Context) (detection.PercentConfig, error)
}

// PriorSource computes the location prior for a cycle.
type PriorSource interface {
	ForLocation(ctx context.Context, loc *detection.Location, t time.Time) (birdnet.PriorMap, error)
}

// Classifier turns a clip into per-interval label scores.
type Classifier interface {
	Analyze(ctx context.Context, path string, minConfidence float64) ([]detection.RawInterval, error)
}

// Store persists the detections of one clip atomically.
type Store interface {
	SaveDetections(ctx context.Context, detections []detection.Detection) error
}

// SaveHookStore calls OnSaved after every successful non-empty save.
type SaveHookStore struct {
	Store
	OnSaved func()
}

// SaveDetections implements Store.
func (s SaveHookStore) SaveDetections(ctx context.Context, detections []detection.Detection) error {
	if err := s.Store.SaveDetections(ctx, detections); err != nil {
		return err
	}
	if len(detections) > 0 && s.OnSaved != nil {
		s.OnSaved()
	}
	return nil
}

// Publisher forwards saved detections, e.g. to MQTT.
type Publisher interface {
	PublishDetections(ctx context.Context, detections []detection.Detection) error
}

// Notifier announces newly confirmed observations.
type Notifier interface {
	Check(ctx context.Context, cfg detection.Config) error
}

// Heartbeat signals that the analyzer is alive.
type Heartbeat interface {
	Beat(ctx context.Context) error
}

// HeartbeatFunc adapts a function to Heartbeat.
type HeartbeatFunc func(ctx context.Context) error

// Beat implements Heartbeat.
func (f HeartbeatFunc) Beat(ctx context.Context) error { return f(ctx) }

// StoreConfigSource reads the config record from the local datastore,
// refreshing the location by IP geolocation when a client is set.
type StoreConfigSource struct {
	store   geolocation.ConfigStore
	locator *geolocation.Client
}

// NewStoreConfigSource returns a ConfigSource over store. locator may be nil.
func NewStoreConfigSource(store geolocation.ConfigStore, locator *geolocation.Client) *StoreConfigSource {
	return &StoreConfigSource{store: store, locator: locator}
}

// FetchConfig implements ConfigSource.
func (s *StoreConfigSource) FetchConfig(ctx context.Context) (detection.PercentConfig, error) {
	rec, err := geolocation.StoredConfig(ctx, s.store, s.locator)
	if err != nil {
		return detection.PercentConfig{}, err
	}
	return rec.PercentConfig(), nil
}
