// Package geolocation resolves the station location from its public IP
// address using ipify and ip-api.
package geolocation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/datastore"
	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

const (
	userAgent = "birdnet-scout"
	// maxBodySize caps what is read from either service
	maxBodySize = 64 << 10
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the geolocation package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("geolocation")
	})
	return serviceLogger
}

// Client queries the public IP and its location. Lookups are rate limited
// and both endpoints share one circuit breaker.
type Client struct {
	httpClient *http.Client
	ipURL      string
	lookupURL  string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// NewClient builds a client from settings.
func NewClient(settings *conf.GeolocationSettings) *Client {
	rps := settings.RateLimit
	if rps <= 0 {
		rps = 1
	}
	timeout := settings.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		ipURL:      settings.IPURL,
		lookupURL:  settings.LookupURL,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "geolocation",
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

// PublicIP returns the station's public IP address.
func (c *Client) PublicIP(ctx context.Context) (string, error) {
	body, err := c.get(ctx, c.ipURL, "public_ip")
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(body))
	if ip == "" {
		return "", errors.Newf("empty public IP response").
			Component("geolocation").
			Category(errors.CategoryNetwork).
			Build()
	}
	return ip, nil
}

// Lookup resolves an IP address to coordinates.
func (c *Client) Lookup(ctx context.Context, ip string) (detection.Location, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return detection.Location{}, errors.New(err).
			Component("geolocation").
			Category(errors.CategoryNetwork).
			Context("operation", "rate_limiter_wait").
			Build()
	}

	body, err := c.get(ctx, c.lookupURL+ip, "ip_lookup")
	if err != nil {
		return detection.Location{}, err
	}

	return parseLookup(body)
}

// UpdateLocation refreshes rec's coordinates when the public IP differs from
// the one used for the stored location. It reports whether rec changed.
func (c *Client) UpdateLocation(ctx context.Context, rec *datastore.ConfigRecord) (bool, error) {
	ip, err := c.PublicIP(ctx)
	if err != nil {
		return false, err
	}
	if ip == rec.LastIP {
		return false, nil
	}

	loc, err := c.Lookup(ctx, ip)
	if err != nil {
		return false, err
	}

	rec.SetLocation(&loc)
	rec.LastIP = ip

	GetLogger().Info("Location updated from IP geolocation",
		logger.Float64("lat", loc.Lat),
		logger.Float64("lon", loc.Lon))
	return true, nil
}

func (c *Client) get(ctx context.Context, url, operation string) ([]byte, error) {
	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	})
	if err != nil {
		return nil, errors.New(err).
			Component("geolocation").
			Category(errors.CategoryNetwork).
			Context("operation", operation).
			Context("url", url).
			Timing(operation, time.Since(start)).
			Build()
	}
	return body, nil
}

// parseLookup reads an ip-api style response.
func parseLookup(body []byte) (detection.Location, error) {
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return detection.Location{}, errors.New(err).
			Component("geolocation").
			Category(errors.CategoryFileParsing).
			Context("operation", "parse_lookup").
			Build()
	}

	if status, err := obj.GetString("status"); err == nil && status != "success" {
		message, _ := obj.GetString("message")
		return detection.Location{}, errors.Newf("lookup failed: %s %s", status, message).
			Component("geolocation").
			Category(errors.CategoryNetwork).
			Build()
	}

	lat, err := obj.GetFloat64("lat")
	if err != nil {
		return detection.Location{}, fmt.Errorf("lookup response missing lat: %w", err)
	}
	lon, err := obj.GetFloat64("lon")
	if err != nil {
		return detection.Location{}, fmt.Errorf("lookup response missing lon: %w", err)
	}

	loc := detection.Location{Lat: lat, Lon: lon}
	if err := loc.Validate(); err != nil {
		return detection.Location{}, err
	}
	return loc, nil
}
