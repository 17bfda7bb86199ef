package birdnet

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// PriorMap maps a composite label to its occurrence probability at a
// location and week.
type PriorMap map[string]float64

// RangePredictor predicts species occurrence for a location and ISO week.
type RangePredictor interface {
	Predict(ctx context.Context, lat, lon float64, week int) (map[string]float64, error)
}

// LocationPrior computes and caches PriorMaps. Results are a pure function
// of (lat, lon, week) so they are shared across cycles until the TTL ends.
type LocationPrior struct {
	predictor RangePredictor
	cache     *cache.Cache
}

// NewLocationPrior wraps predictor with an in-memory cache.
func NewLocationPrior(predictor RangePredictor, ttl time.Duration) *LocationPrior {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &LocationPrior{
		predictor: predictor,
		cache:     cache.New(ttl, 2*ttl),
	}
}

// Compute returns the prior for a location and ISO week. Callers receive
// their own copy of the map.
func (p *LocationPrior) Compute(ctx context.Context, lat, lon float64, week int) (PriorMap, error) {
	if week < 1 || week > 53 {
		return nil, errors.Newf("ISO week %d out of range [1, 53]", week).
			Component("birdnet").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := (detection.Location{Lat: lat, Lon: lon}).Validate(); err != nil {
		return nil, errors.New(err).
			Component("birdnet").
			Category(errors.CategoryValidation).
			Build()
	}

	key := priorCacheKey(lat, lon, week)
	if cached, ok := p.cache.Get(key); ok {
		return maps.Clone(cached.(PriorMap)), nil
	}

	start := time.Now()
	scores, err := p.predictor.Predict(ctx, lat, lon, week)
	if err != nil {
		return nil, errors.New(err).
			Component("birdnet").
			Category(errors.CategoryProcessing).
			Context("operation", "location_prior").
			Context("week", week).
			Build()
	}

	prior := PriorMap(maps.Clone(scores))
	if prior == nil {
		prior = PriorMap{}
	}
	p.cache.SetDefault(key, prior)

	GetLogger().Debug("location prior computed",
		logger.Int("week", week),
		logger.Int("species", len(prior)),
		logger.Duration("duration", time.Since(start)))

	return maps.Clone(prior), nil
}

// ForLocation computes the prior for loc at time t. A nil location yields an
// empty map and no error; callers skip the location check in that case.
func (p *LocationPrior) ForLocation(ctx context.Context, loc *detection.Location, t time.Time) (PriorMap, error) {
	if loc == nil {
		return PriorMap{}, nil
	}
	return p.Compute(ctx, loc.Lat, loc.Lon, ISOWeek(t))
}

// Flush drops all cached priors.
func (p *LocationPrior) Flush() {
	p.cache.Flush()
}

// ISOWeek returns the ISO-8601 week number of t.
func ISOWeek(t time.Time) int {
	_, week := t.ISOWeek()
	return week
}

func priorCacheKey(lat, lon float64, week int) string {
	return fmt.Sprintf("%.4f,%.4f|%d", lat, lon, week)
}
