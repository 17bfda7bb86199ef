package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/geolocation"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// ConfigUpdate is the PUT /api/config body. Omitted fields keep their stored
// value. Percent thresholds are capped at 90.
type ConfigUpdate struct {
	Location              *LocationUpdate `json:"location"`
	MinAudioConfidence    *int            `json:"min_audio_confidence" validate:"omitempty,min=0,max=90"`
	MinLocationConfidence *int            `json:"min_location_confidence" validate:"omitempty,min=0,max=90"`
	MinSampleThreshold    *int            `json:"min_sample_threshold" validate:"omitempty,min=1"`
	Timezone              *string         `json:"timezone" validate:"omitempty,min=1,max=64"`
}

// LocationUpdate sets or clears the location. An empty object clears it.
type LocationUpdate struct {
	Lat *float64 `json:"lat" validate:"omitempty,latitude"`
	Lon *float64 `json:"lon" validate:"omitempty,longitude"`
}

// partial reports whether only one coordinate was given.
func (l *LocationUpdate) partial() bool {
	return (l.Lat == nil) != (l.Lon == nil)
}

// location returns the requested location, nil for a clear.
func (l *LocationUpdate) location() *detection.Location {
	if l.Lat == nil || l.Lon == nil {
		return nil
	}
	return &detection.Location{Lat: *l.Lat, Lon: *l.Lon}
}

// apply merges the update into p.
func (u *ConfigUpdate) apply(p detection.PercentConfig) detection.PercentConfig {
	if u.Location != nil {
		p.Location = u.Location.location()
	}
	if u.MinAudioConfidence != nil {
		p.MinAudioConfidence = *u.MinAudioConfidence
	}
	if u.MinLocationConfidence != nil {
		p.MinLocationConfidence = *u.MinLocationConfidence
	}
	if u.MinSampleThreshold != nil {
		p.MinSampleThreshold = *u.MinSampleThreshold
	}
	if u.Timezone != nil {
		p.Timezone = *u.Timezone
	}
	return p
}

// GetConfig handles GET /api/config. When geolocation is enabled the stored
// location is refreshed first; refresh failures never fail the request.
func (c *Controller) GetConfig(ctx echo.Context) error {
	rec, err := geolocation.StoredConfig(ctx.Request().Context(), c.store, c.locator)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load config", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, rec.PercentConfig())
}

// UpdateConfig handles PUT /api/config.
func (c *Controller) UpdateConfig(ctx echo.Context) error {
	var update ConfigUpdate
	dec := json.NewDecoder(ctx.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		return c.HandleError(ctx, err, msgInvalidJSON, http.StatusBadRequest)
	}
	if err := c.validate.Struct(&update); err != nil {
		return c.HandleError(ctx, nil, "Invalid config: "+describeValidation(err), http.StatusBadRequest)
	}
	if update.Location != nil && update.Location.partial() {
		return c.HandleError(ctx, nil, "Invalid config: location needs both lat and lon", http.StatusBadRequest)
	}
	if update.Timezone != nil {
		if _, err := time.LoadLocation(*update.Timezone); err != nil {
			return c.HandleError(ctx, nil, "Invalid config: unknown timezone "+*update.Timezone, http.StatusBadRequest)
		}
	}

	reqCtx := ctx.Request().Context()
	rec, err := c.store.GetConfig(reqCtx)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to load config", http.StatusInternalServerError)
	}

	next := update.apply(rec.PercentConfig())
	if _, err := next.Normalize(); err != nil {
		return c.HandleError(ctx, err, "Invalid config", http.StatusBadRequest)
	}
	rec.Apply(next)

	if err := c.store.SaveConfig(reqCtx, rec); err != nil {
		return c.HandleError(ctx, err, "Failed to save config", http.StatusInternalServerError)
	}
	c.InvalidateObservations()

	GetLogger().Info("Detection config updated",
		logger.Int("min_audio_confidence", next.MinAudioConfidence),
		logger.Int("min_location_confidence", next.MinLocationConfidence),
		logger.Int("min_sample_threshold", next.MinSampleThreshold),
		logger.String("timezone", next.Timezone))
	return ctx.JSON(http.StatusOK, next)
}
