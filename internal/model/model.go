// Package model contains the database models for stored purchases.
package model

import (
	"errors"
	"time"

	"github.com/blacktop/go-receipt/pkg/receipt"
)

var ErrNotFound = errors.New("no purchase found")

// Purchase is one in-app purchase seen in a verified receipt.
type Purchase struct {
	TransactionID string    `gorm:"primaryKey" json:"transaction_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	BundleID              string     `gorm:"index" json:"bundle_id"`
	ProductID             string     `json:"product_id"`
	OriginalTransactionID string     `gorm:"index" json:"original_transaction_id,omitempty"`
	ProductType           string     `json:"product_type"`
	Quantity              int        `json:"quantity"`
	PurchaseDate          *time.Time `json:"purchase_date,omitempty"`
	OriginalPurchaseDate  *time.Time `json:"original_purchase_date,omitempty"`
	ExpiresDate           *time.Time `json:"expires_date,omitempty"`
	CancellationDate      *time.Time `json:"cancellation_date,omitempty"`
	IsTrialPeriod         bool       `json:"is_trial_period"`
	IsInIntroOfferPeriod  bool       `json:"is_in_intro_offer_period"`
}

// NewPurchases converts the in-app purchases of a receipt to models. Records
// without a transaction id cannot be keyed and are skipped.
func NewPurchases(info *receipt.Info) []Purchase {
	var out []Purchase
	for _, iap := range info.InAppPurchases {
		if iap.TransactionID == "" {
			continue
		}
		out = append(out, Purchase{
			TransactionID:         iap.TransactionID,
			BundleID:              info.BundleID,
			ProductID:             iap.ProductID,
			OriginalTransactionID: iap.OriginalTransactionID,
			ProductType:           iap.ProductType.String(),
			Quantity:              iap.Quantity,
			PurchaseDate:          iap.PurchaseDate,
			OriginalPurchaseDate:  iap.OriginalPurchaseDate,
			ExpiresDate:           iap.ExpiresDate,
			CancellationDate:      iap.CancellationDate,
			IsTrialPeriod:         iap.IsTrialPeriod,
			IsInIntroOfferPeriod:  iap.IsInIntroOfferPeriod,
		})
	}
	return out
}
