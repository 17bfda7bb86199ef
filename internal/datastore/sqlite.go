package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// SQLiteStore implements Interface for SQLite.
type SQLiteStore struct {
	DataStore
	Path string
}

// Open creates the database file and its directory if needed, then migrates.
func (store *SQLiteStore) Open() error {
	if store.Path == "" {
		return errors.Newf("sqlite path not configured").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if dir := filepath.Dir(store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("path", dir).
				Build()
		}
	}

	db, err := gorm.Open(sqlite.Open(store.Path), newGormConfig())
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open_sqlite").
			Context("path", store.Path).
			Build()
	}

	// SQLite allows one writer; serialize access through a single connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	store.DB = db
	if err := performAutoMigration(db, "SQLite"); err != nil {
		return err
	}

	GetLogger().Info("SQLite database opened", logger.String("path", store.Path))
	return nil
}

// Close closes the database.
func (store *SQLiteStore) Close() error {
	return store.closeDB()
}
