// Package db contains the database connection setup
package db

import (
	"fmt"

	"polo74/file-api/internal/model"

	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New opens the metadata store selected by database.driver and runs
// the automigrations. Both the API and the worker call this, so the
// schema ends up the same no matter which process starts first.
func New() (*gorm.DB, error) {
	var dial gorm.Dialector

	dsn := viper.GetString("database.dsn")

	switch driver := viper.GetString("database.driver"); driver {
	case "postgres":
		dial = postgres.Open(dsn)
	case "sqlite":
		dial = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dial)
	if err != nil {
		return nil, fmt.Errorf("failed to open database, %w", err)
	}

	err = db.AutoMigrate(model.User{}, model.File{})
	if err != nil {
		return nil, fmt.Errorf("failed to automigrate tables, %w", err)
	}

	return db, nil
}
