package geolocation

import (
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/datastore"
)

const (
	testIPURL     = "https://api.ipify.org"
	testLookupURL = "http://ip-api.com/json/"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	return NewClient(&conf.GeolocationSettings{
		Enabled:   true,
		IPURL:     testIPURL,
		LookupURL: testLookupURL,
		RateLimit: 100,
		Timeout:   time.Second,
	})
}

func TestUpdateLocationQueriesOnIPChange(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("GET", testIPURL,
		httpmock.NewStringResponder(200, "203.0.113.7\n"))
	httpmock.RegisterResponder("GET", testLookupURL+"203.0.113.7",
		httpmock.NewStringResponder(200, `{"status":"success","lat":45.52,"lon":-122.68,"query":"203.0.113.7"}`))

	rec := &datastore.ConfigRecord{LastIP: "198.51.100.1"}
	changed, err := client.UpdateLocation(t.Context(), rec)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "203.0.113.7", rec.LastIP)

	loc := rec.PercentConfig().Location
	require.NotNil(t, loc)
	assert.InDelta(t, 45.52, loc.Lat, 1e-9)
	assert.InDelta(t, -122.68, loc.Lon, 1e-9)

	assert.Equal(t, 1, httpmock.GetCallCountInfo()["GET "+testLookupURL+"203.0.113.7"])
}

func TestUpdateLocationSkipsLookupForSameIP(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("GET", testIPURL,
		httpmock.NewStringResponder(200, "203.0.113.7"))

	rec := &datastore.ConfigRecord{LastIP: "203.0.113.7"}
	changed, err := client.UpdateLocation(t.Context(), rec)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, httpmock.GetTotalCallCount(), "only the IP service is called")
}

func TestLookupFailureStatus(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("GET", testLookupURL+"10.0.0.1",
		httpmock.NewStringResponder(200, `{"status":"fail","message":"private range","query":"10.0.0.1"}`))

	_, err := client.Lookup(t.Context(), "10.0.0.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private range")
}

func TestPublicIPHTTPError(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("GET", testIPURL,
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"))

	_, err := client.PublicIP(t.Context())
	require.Error(t, err)

	httpmock.RegisterResponder("GET", testIPURL, httpmock.NewStringResponder(200, "  "))
	_, err = client.PublicIP(t.Context())
	require.Error(t, err)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	client := newTestClient(t)

	httpmock.RegisterResponder("GET", testIPURL,
		httpmock.NewStringResponder(http.StatusInternalServerError, "boom"))

	for range 10 {
		_, err := client.PublicIP(t.Context())
		require.Error(t, err)
	}

	// six consecutive failures trip the breaker; later calls never reach the server
	assert.Equal(t, 6, httpmock.GetTotalCallCount())
}

func TestParseLookup(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"status":"success","lat":1.5,"lon":2.5}`, false},
		{"no status field", `{"lat":1.5,"lon":2.5}`, false},
		{"invalid json", `<html>`, true},
		{"missing lon", `{"status":"success","lat":1.5}`, true},
		{"out of range", `{"status":"success","lat":100,"lon":2.5}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseLookup([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
