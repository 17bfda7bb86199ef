package geolocation

import (
	"context"

	"github.com/tphakala/birdnet-scout/internal/datastore"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// ConfigStore is the part of the datastore that holds the config record.
type ConfigStore interface {
	GetConfig(ctx context.Context) (*datastore.ConfigRecord, error)
	SaveConfig(ctx context.Context, cfg *datastore.ConfigRecord) error
}

// StoredConfig loads the config record and, when client is not nil, refreshes
// its location from the public IP. Refresh failures are logged and the stored
// record is returned unchanged; only a failing read is an error.
func StoredConfig(ctx context.Context, store ConfigStore, client *Client) (*datastore.ConfigRecord, error) {
	rec, err := store.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return rec, nil
	}

	changed, err := client.UpdateLocation(ctx, rec)
	if err != nil {
		GetLogger().Warn("IP geolocation refresh failed, keeping stored location",
			logger.Error(err))
		return rec, nil
	}
	if !changed {
		return rec, nil
	}

	if err := store.SaveConfig(ctx, rec); err != nil {
		GetLogger().Warn("Failed to persist refreshed location", logger.Error(err))
	}
	return rec, nil
}
