package db

import (
	"fmt"

	"github.com/blacktop/go-receipt/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Postgres is a database that stores data in a Postgres database.
type Postgres struct {
	DSN string

	gormStore
}

// NewPostgres creates a new Postgres database from a libpq style DSN or URL.
func NewPostgres(dsn string) (Database, error) {
	if dsn == "" {
		return nil, fmt.Errorf("'dsn' is required")
	}
	return &Postgres{DSN: dsn}, nil
}

// Connect connects to the database.
func (p *Postgres) Connect() (err error) {
	p.db, err = gorm.Open(postgres.Open(p.DSN), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect postgres database: %w", err)
	}
	return p.db.AutoMigrate(&model.Purchase{})
}
