package db

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/blacktop/go-receipt/internal/model"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// daemon handlers write concurrently
const sqlitePragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// Sqlite stores purchases in a sqlite file.
type Sqlite struct {
	Path      string
	BatchSize int

	gormStore
}

// NewSqlite creates a new Sqlite database at path.
func NewSqlite(path string, batchSize int) (Database, error) {
	if path == "" {
		return nil, fmt.Errorf("'path' is required")
	}
	return &Sqlite{
		Path:      path,
		BatchSize: batchSize,
	}, nil
}

// Connect opens the file, creating its directory if needed, and migrates the
// purchase table.
func (s *Sqlite) Connect() error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o750); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(s.Path+sqlitePragmas), &gorm.Config{
		CreateBatchSize:        s.BatchSize,
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open sqlite database %s: %w", s.Path, err)
	}
	s.db = db
	return s.db.AutoMigrate(&model.Purchase{})
}
