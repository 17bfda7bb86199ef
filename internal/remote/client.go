// Package remote talks to a scout server so an analyzer can run on another
// host: it fetches the detection config, posts detections and sends
// heartbeats.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

const maxResponseSize = 1 << 20

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the remote package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("remote")
	})
	return serviceLogger
}

// Client is an HTTP client for the scout API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "remote",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				GetLogger().Warn("Circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()))
			},
		}),
	}
}

// FetchConfig implements the pipeline config source.
func (c *Client) FetchConfig(ctx context.Context) (detection.PercentConfig, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/config", nil)
	if err != nil {
		return detection.PercentConfig{}, err
	}

	var cfg detection.PercentConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return detection.PercentConfig{}, errors.New(err).
			Component("remote").
			Category(errors.CategoryFileParsing).
			Context("operation", "decode_config").
			Build()
	}
	return cfg, nil
}

// SaveDetections posts a batch. The server stores all of it or none of it;
// any non-2xx answer is returned as an error.
func (c *Client) SaveDetections(ctx context.Context, detections []detection.Detection) error {
	if len(detections) == 0 {
		return nil
	}

	payload := make([]detection.Payload, len(detections))
	for i := range detections {
		payload[i] = detection.ToPayload(&detections[i])
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding detections: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, "/api/detections", data)
	return err
}

// Beat sends the analyzer heartbeat.
func (c *Client) Beat(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/heartbeat/analyzer", nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	start := time.Now()
	url := c.baseURL + path

	out, err := c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader = http.NoBody
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return data, nil
	})
	if err != nil {
		return nil, errors.New(err).
			Component("remote").
			Category(errors.CategoryNetwork).
			Context("method", method).
			Context("path", path).
			Timing("remote_request", time.Since(start)).
			Build()
	}
	return out, nil
}
