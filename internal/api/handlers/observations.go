package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/birdnet-scout/internal/aggregation"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

const observationsCacheKey = "observations"

// ObservationsResponse is the GET /api/observations body.
type ObservationsResponse struct {
	Dates           []string                             `json:"dates"`
	Observations    map[string][]aggregation.Observation `json:"observations"`
	TotalDiscovered int                                  `json:"total_discovered"`
}

func emptyObservations() ObservationsResponse {
	return ObservationsResponse{
		Dates:        []string{},
		Observations: map[string][]aggregation.Observation{},
	}
}

// GetObservations handles GET /api/observations. Store or config failures are
// logged and answered with an empty result.
func (c *Controller) GetObservations(ctx echo.Context) error {
	if cached, ok := c.cache.Get(observationsCacheKey); ok {
		if resp, ok := cached.(ObservationsResponse); ok {
			return ctx.JSON(http.StatusOK, resp)
		}
	}

	resp, err := c.buildObservations(ctx)
	if err != nil {
		GetLogger().Error("Failed to build observations, returning empty result",
			logger.String("path", ctx.Request().URL.Path),
			logger.Error(err))
		return ctx.JSON(http.StatusOK, emptyObservations())
	}

	c.cache.Set(observationsCacheKey, resp, c.cacheTTL)
	return ctx.JSON(http.StatusOK, resp)
}

func (c *Controller) buildObservations(ctx echo.Context) (ObservationsResponse, error) {
	reqCtx := ctx.Request().Context()

	rec, err := c.store.GetConfig(reqCtx)
	if err != nil {
		return ObservationsResponse{}, err
	}
	cfg, err := rec.PercentConfig().Normalize()
	if err != nil {
		return ObservationsResponse{}, err
	}

	records, err := c.store.Detections(reqCtx)
	if err != nil {
		return ObservationsResponse{}, err
	}

	summary := aggregation.Summarize(records, cfg.MinSampleThreshold, cfg.Timezone)
	resp := ObservationsResponse{
		Dates:           summary.Dates,
		Observations:    summary.Observations,
		TotalDiscovered: aggregation.Discovered(records, cfg.MinSampleThreshold),
	}
	if resp.Dates == nil {
		resp.Dates = []string{}
	}
	if resp.Observations == nil {
		resp.Observations = map[string][]aggregation.Observation{}
	}
	return resp, nil
}
