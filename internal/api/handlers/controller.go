// Package handlers implements the BirdNET-Scout JSON API: detection
// ingestion, the stored detection config, aggregated observations,
// service heartbeats and the healthcheck.
package handlers

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/datastore"
	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/geolocation"
	"github.com/tphakala/birdnet-scout/internal/logger"
	"github.com/tphakala/birdnet-scout/internal/observability"
)

const (
	defaultCacheTTL     = 10 * time.Second
	defaultHeartbeatTTL = 30 * time.Second
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the handlers package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("api")
	})
	return serviceLogger
}

// Store is the datastore surface used by the API.
type Store interface {
	SaveDetections(ctx context.Context, detections []detection.Detection) error
	Detections(ctx context.Context) ([]detection.Detection, error)
	GetConfig(ctx context.Context) (*datastore.ConfigRecord, error)
	SaveConfig(ctx context.Context, cfg *datastore.ConfigRecord) error
}

// PendingCounter reports the number of clips waiting for analysis.
type PendingCounter interface {
	Count() (int, error)
}

// Controller holds the dependencies of the API handlers.
type Controller struct {
	Echo     *echo.Echo
	Settings *conf.Settings

	store      Store
	locator    *geolocation.Client
	queue      PendingCounter
	metrics    *observability.Metrics
	validate   *validator.Validate
	cache      *cache.Cache
	cacheTTL   time.Duration
	heartbeats *Heartbeats
	now        func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLocator enables IP geolocation refresh on config reads.
func WithLocator(c *geolocation.Client) Option {
	return func(ctrl *Controller) { ctrl.locator = c }
}

// WithPendingCounter adds the pending clip count to the healthcheck.
func WithPendingCounter(q PendingCounter) Option {
	return func(ctrl *Controller) { ctrl.queue = q }
}

// WithMetrics exposes /metrics and records API counters.
func WithMetrics(m *observability.Metrics) Option {
	return func(ctrl *Controller) { ctrl.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(ctrl *Controller) { ctrl.now = now }
}

// New creates a Controller and registers its routes on e.
func New(e *echo.Echo, store Store, settings *conf.Settings, opts ...Option) *Controller {
	c := &Controller{
		Echo:     e,
		Settings: settings,
		store:    store,
		validate: newValidator(),
		cacheTTL: settings.WebServer.CacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.cacheTTL <= 0 {
		c.cacheTTL = defaultCacheTTL
	}
	c.cache = cache.New(c.cacheTTL, 2*c.cacheTTL)

	heartbeatTTL := settings.WebServer.HeartbeatTTL
	if heartbeatTTL <= 0 {
		heartbeatTTL = defaultHeartbeatTTL
	}
	c.heartbeats = NewHeartbeats(heartbeatTTL, c.now())

	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	api := c.Echo.Group("/api")
	api.POST("/detections", c.CreateDetections)
	api.GET("/config", c.GetConfig)
	api.PUT("/config", c.UpdateConfig)
	api.GET("/observations", c.GetObservations)

	c.Echo.GET("/heartbeat/recorder", c.RecorderHeartbeat)
	c.Echo.GET("/heartbeat/analyzer", c.AnalyzerHeartbeat)
	// misspelled path used by early analyzer builds
	c.Echo.GET("/heartbeat/analzyer", c.AnalyzerHeartbeat)
	c.Echo.GET("/healthcheck", c.HealthCheck)

	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response. Without err the
// message doubles as the error text.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	// server side failure details stay in the log
	errorStr := message
	if err != nil && code < http.StatusInternalServerError {
		errorStr = err.Error()
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// HandleError logs err and writes the error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		GetLogger().Error("API error", fields...)
	} else {
		GetLogger().Debug("API request rejected", fields...)
	}

	return ctx.JSON(code, resp)
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// InvalidateObservations drops the cached observation response. The
// analyzer calls it after saving to the shared store.
func (c *Controller) InvalidateObservations() {
	c.cache.Delete(observationsCacheKey)
}
