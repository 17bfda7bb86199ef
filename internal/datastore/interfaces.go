// interfaces.go defines the store interface and its GORM implementation
package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/detection"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// ErrNotOpen is returned when a store is used before Open or after Close.
var ErrNotOpen = errors.NewStd("database connection is not initialized")

// slowQueryThreshold marks queries logged as slow
const slowQueryThreshold = 500 * time.Millisecond

// Interface abstracts the database backend.
type Interface interface {
	Open() error
	Close() error
	// SaveDetections stores a batch atomically: either every detection is
	// stored or none is.
	SaveDetections(ctx context.Context, detections []detection.Detection) error
	// Detections returns every stored detection ordered by recording start.
	Detections(ctx context.Context) ([]detection.Detection, error)
	// CountDetections returns the number of stored detections.
	CountDetections(ctx context.Context) (int64, error)
	// GetConfig returns the stored config row, creating it with defaults on
	// first use.
	GetConfig(ctx context.Context) (*ConfigRecord, error)
	// SaveConfig replaces the stored config row.
	SaveConfig(ctx context.Context, cfg *ConfigRecord) error
}

// DataStore implements Interface on a GORM database.
type DataStore struct {
	DB       *gorm.DB
	defaults detection.PercentConfig
}

// New returns the store selected in settings. It does not open it.
func New(settings *conf.Settings) (Interface, error) {
	defaults := settings.PercentConfig()
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			DataStore: DataStore{defaults: defaults},
			Path:      settings.Output.SQLite.Path,
		}, nil
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			DataStore: DataStore{defaults: defaults},
			dsn:       mysqlDSN(&settings.Output.MySQL),
			database:  settings.Output.MySQL.Database,
		}, nil
	default:
		return nil, errors.Newf("no database backend enabled in output settings").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// SaveDetections inserts all detections in one transaction.
func (ds *DataStore) SaveDetections(ctx context.Context, detections []detection.Detection) error {
	if ds.DB == nil {
		return ErrNotOpen
	}
	if len(detections) == 0 {
		return nil
	}

	start := time.Now()
	err := ds.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range detections {
			record := toRecord(&detections[i])
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("inserting detection %d of %d (%s): %w",
					i+1, len(detections), detections[i].Scientific, err)
			}
		}
		return nil
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_detections").
			Context("count", len(detections)).
			Timing("save_detections", time.Since(start)).
			Build()
	}

	GetLogger().Debug("Detections saved",
		logger.Int("count", len(detections)),
		logger.Duration("duration", time.Since(start)))
	return nil
}

// Detections returns all stored detections, oldest first.
func (ds *DataStore) Detections(ctx context.Context) ([]detection.Detection, error) {
	if ds.DB == nil {
		return nil, ErrNotOpen
	}

	var records []DetectionRecord
	if err := ds.DB.WithContext(ctx).Order("recording_start, id").Find(&records).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "list_detections").
			Build()
	}

	out := make([]detection.Detection, len(records))
	for i := range records {
		out[i] = fromRecord(&records[i])
	}
	return out, nil
}

// CountDetections returns the number of stored detections.
func (ds *DataStore) CountDetections(ctx context.Context) (int64, error) {
	if ds.DB == nil {
		return 0, ErrNotOpen
	}
	var n int64
	if err := ds.DB.WithContext(ctx).Model(&DetectionRecord{}).Count(&n).Error; err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count_detections").
			Build()
	}
	return n, nil
}

// GetConfig returns the config row, inserting the defaults if it is missing.
func (ds *DataStore) GetConfig(ctx context.Context) (*ConfigRecord, error) {
	if ds.DB == nil {
		return nil, ErrNotOpen
	}

	db := ds.DB.WithContext(ctx)

	var record ConfigRecord
	err := db.First(&record, configRecordID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		record = ConfigRecord{ID: configRecordID}
		record.Apply(ds.defaults)
		err = db.Create(&record).Error
		if err == nil {
			GetLogger().Info("Created default config record")
		}
	}
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_config").
			Build()
	}
	return &record, nil
}

// SaveConfig writes the config row.
func (ds *DataStore) SaveConfig(ctx context.Context, cfg *ConfigRecord) error {
	if ds.DB == nil {
		return ErrNotOpen
	}
	if cfg == nil {
		return errors.Newf("config record is nil").
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	cfg.ID = configRecordID
	if err := ds.DB.WithContext(ctx).Save(cfg).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "save_config").
			Build()
	}
	return nil
}

// closeDB releases the underlying connection pool.
func (ds *DataStore) closeDB() error {
	if ds.DB == nil {
		return ErrNotOpen
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to retrieve generic DB object: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	ds.DB = nil
	return nil
}

// performAutoMigration creates or updates the schema.
func performAutoMigration(db *gorm.DB, dbType string) error {
	start := time.Now()
	if err := db.AutoMigrate(&DetectionRecord{}, &ConfigRecord{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Context("db_type", dbType).
			Build()
	}
	GetLogger().Debug("Database migration completed",
		logger.String("db_type", dbType),
		logger.Duration("duration", time.Since(start)))
	return nil
}

func newGormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(GetLogger(), slowQueryThreshold),
	}
}
