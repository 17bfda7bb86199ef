package geolocation

import (
	"context"
	"fmt"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-scout/internal/datastore"
)

type memoryConfigStore struct {
	rec     datastore.ConfigRecord
	saves   int
	getErr  error
	saveErr error
}

func (m *memoryConfigStore) GetConfig(context.Context) (*datastore.ConfigRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec := m.rec
	return &rec, nil
}

func (m *memoryConfigStore) SaveConfig(_ context.Context, cfg *datastore.ConfigRecord) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.rec = *cfg
	return nil
}

func TestStoredConfigWithoutClient(t *testing.T) {
	store := &memoryConfigStore{rec: datastore.ConfigRecord{MinAudioConfidence: 70}}

	rec, err := StoredConfig(t.Context(), store, nil)
	require.NoError(t, err)
	assert.Equal(t, 70, rec.MinAudioConfidence)
	assert.Zero(t, store.saves)
}

func TestStoredConfigSavesRefreshedLocation(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder("GET", testIPURL,
		httpmock.NewStringResponder(200, "203.0.113.9"))
	httpmock.RegisterResponder("GET", testLookupURL+"203.0.113.9",
		httpmock.NewStringResponder(200, `{"status":"success","lat":10.5,"lon":20.25}`))

	store := &memoryConfigStore{}
	rec, err := StoredConfig(t.Context(), store, client)
	require.NoError(t, err)
	require.NotNil(t, rec.PercentConfig().Location)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, "203.0.113.9", store.rec.LastIP)

	// same IP, nothing to save
	_, err = StoredConfig(t.Context(), store, client)
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)
}

func TestStoredConfigRefreshFailureIsNotFatal(t *testing.T) {
	client := newTestClient(t)
	httpmock.RegisterResponder("GET", testIPURL,
		httpmock.NewStringResponder(503, "unavailable"))

	store := &memoryConfigStore{rec: datastore.ConfigRecord{LastIP: "198.51.100.1"}}
	rec, err := StoredConfig(t.Context(), store, client)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.1", rec.LastIP)
	assert.Zero(t, store.saves)
}

func TestStoredConfigReadFailure(t *testing.T) {
	store := &memoryConfigStore{getErr: fmt.Errorf("database locked")}
	_, err := StoredConfig(t.Context(), store, nil)
	require.Error(t, err)
}
