package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/tphakala/birdnet-scout/internal/logger"
)

// Services reporting heartbeats.
const (
	ServiceRecorder = "recorder"
	ServiceAnalyzer = "analyzer"
)

// Heartbeats tracks the last time each service checked in. Every service
// starts as seen at the start time.
type Heartbeats struct {
	mu    sync.RWMutex
	ttl   time.Duration
	start time.Time
	seen  map[string]time.Time
}

// NewHeartbeats creates a tracker whose services count as seen at start.
func NewHeartbeats(ttl time.Duration, start time.Time) *Heartbeats {
	return &Heartbeats{
		ttl:   ttl,
		start: start,
		seen:  make(map[string]time.Time),
	}
}

// Beat records a heartbeat for service at t.
func (h *Heartbeats) Beat(service string, t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[service] = t
}

// LastSeen returns the last heartbeat of service.
func (h *Heartbeats) LastSeen(service string) time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if t, ok := h.seen[service]; ok {
		return t
	}
	return h.start
}

// Healthy reports whether service was seen within the TTL before now.
func (h *Heartbeats) Healthy(service string, now time.Time) bool {
	return now.Sub(h.LastSeen(service)) <= h.ttl
}

// DiskUsage describes the filesystem holding the clip directory.
type DiskUsage struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// HealthResponse is the GET /healthcheck body.
type HealthResponse struct {
	Recorder     bool       `json:"recorder"`
	Analyzer     bool       `json:"analyzer"`
	PendingClips *int       `json:"pending_clips,omitempty"`
	Disk         *DiskUsage `json:"disk,omitempty"`
}

// RecorderHeartbeat handles GET /heartbeat/recorder.
func (c *Controller) RecorderHeartbeat(ctx echo.Context) error {
	return c.beat(ctx, ServiceRecorder)
}

// AnalyzerHeartbeat handles GET /heartbeat/analyzer.
func (c *Controller) AnalyzerHeartbeat(ctx echo.Context) error {
	return c.beat(ctx, ServiceAnalyzer)
}

func (c *Controller) beat(ctx echo.Context, service string) error {
	c.RecordHeartbeat(service)
	return ctx.NoContent(http.StatusNoContent)
}

// HealthCheck handles GET /healthcheck.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	now := c.now()
	resp := HealthResponse{
		Recorder: c.heartbeats.Healthy(ServiceRecorder, now),
		Analyzer: c.heartbeats.Healthy(ServiceAnalyzer, now),
	}

	if c.queue != nil {
		if n, err := c.queue.Count(); err != nil {
			GetLogger().Warn("Failed to count pending clips", logger.Error(err))
		} else {
			resp.PendingClips = &n
		}
	}

	if dir := c.Settings.Analyzer.ClipDir; dir != "" {
		if usage, err := disk.UsageWithContext(ctx.Request().Context(), dir); err != nil {
			GetLogger().Debug("Disk usage unavailable",
				logger.String("path", dir),
				logger.Error(err))
		} else {
			resp.Disk = &DiskUsage{
				Path:        dir,
				Total:       usage.Total,
				Free:        usage.Free,
				UsedPercent: usage.UsedPercent,
			}
		}
	}

	return ctx.JSON(http.StatusOK, resp)
}

// RecordHeartbeat marks service as seen now. It is used when the analyzer
// runs in the same process as the API.
func (c *Controller) RecordHeartbeat(service string) {
	c.heartbeats.Beat(service, c.now())
	if c.metrics != nil {
		c.metrics.HTTP.RecordHeartbeat(service)
	}
}
