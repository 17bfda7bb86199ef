package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/birdnet-scout/internal/conf"
	"github.com/tphakala/birdnet-scout/internal/errors"
	"github.com/tphakala/birdnet-scout/internal/logger"
)

// MySQLStore implements Interface for MySQL.
type MySQLStore struct {
	DataStore
	dsn      string
	database string
}

func mysqlDSN(s *conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		s.Username, s.Password, s.Host, s.Port, s.Database)
}

// Open connects and migrates.
func (store *MySQLStore) Open() error {
	db, err := gorm.Open(mysql.Open(store.dsn), newGormConfig())
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open_mysql").
			Context("database", store.database).
			Build()
	}

	store.DB = db
	if err := performAutoMigration(db, "MySQL"); err != nil {
		return err
	}

	GetLogger().Info("MySQL database opened", logger.String("database", store.database))
	return nil
}

// Close closes the connection pool.
func (store *MySQLStore) Close() error {
	return store.closeDB()
}
