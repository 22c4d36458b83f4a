// Package db provides a database interface and implementations.
package db

import (
	"fmt"

	"github.com/blacktop/go-receipt/internal/model"
)

// Database is the interface that wraps the purchase store operations.
type Database interface {
	// Connect connects to the database.
	Connect() error

	// SavePurchases upserts purchases under bundleID.
	// Existing rows with the same transaction id are overwritten.
	SavePurchases(bundleID string, purchases []model.Purchase) error

	// GetPurchase returns the purchase with the given transaction id.
	// It returns model.ErrNotFound if the transaction is unknown.
	GetPurchase(transactionID string) (*model.Purchase, error)

	// Ping reports whether the database is reachable.
	Ping() error
	// Close closes the database.
	Close() error
}

// New returns the Database for driver: "sqlite", "postgres" or "memory".
// path is used by sqlite and memory, dsn by postgres.
func New(driver, path, dsn string) (Database, error) {
	switch driver {
	case "sqlite":
		return NewSqlite(path, 100)
	case "postgres":
		return NewPostgres(dsn)
	case "memory", "":
		return NewInMemory(path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
