package db

import (
	"errors"

	"github.com/blacktop/go-receipt/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNotConnected = errors.New("database is not connected")

// gormStore holds the queries shared by the SQL backends.
type gormStore struct {
	db *gorm.DB
}

var updatableColumns = []string{
	"updated_at",
	"bundle_id",
	"product_id",
	"original_transaction_id",
	"product_type",
	"quantity",
	"purchase_date",
	"original_purchase_date",
	"expires_date",
	"cancellation_date",
	"is_trial_period",
	"is_in_intro_offer_period",
}

// SavePurchases upserts purchases under bundleID.
func (g *gormStore) SavePurchases(bundleID string, purchases []model.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}
	rows := make([]model.Purchase, len(purchases))
	for i, p := range purchases {
		p.BundleID = bundleID
		rows[i] = p
	}
	return g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoUpdates: clause.AssignmentColumns(updatableColumns),
	}).Create(&rows).Error
}

// GetPurchase returns the purchase with the given transaction id.
func (g *gormStore) GetPurchase(transactionID string) (*model.Purchase, error) {
	var p model.Purchase
	if err := g.db.Where("transaction_id = ?", transactionID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Ping checks the underlying connection.
func (g *gormStore) Ping() error {
	if g.db == nil {
		return errNotConnected
	}
	db, err := g.db.DB()
	if err != nil {
		return err
	}
	return db.Ping()
}

// Close closes the database.
func (g *gormStore) Close() error {
	if g.db == nil {
		return nil
	}
	db, err := g.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
