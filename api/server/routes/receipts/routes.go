package receipts

import (
	"github.com/blacktop/go-receipt/internal/db"
	"github.com/blacktop/go-receipt/pkg/receipt"
	"github.com/gin-gonic/gin"
)

// AddRoutes adds the receipt routes to the router
func AddRoutes(rg *gin.RouterGroup, v receipt.Verifier, store db.Database, cacheSize int) error {
	h, err := newHandler(v, store, cacheSize)
	if err != nil {
		return err
	}
	// swagger:route POST /receipt Receipt postReceipt
	//
	// Validate
	//
	// Verify and decode a receipt sent as raw DER or as {"receipt-data": "<base64>"}.
	rg.POST("/receipt", h.validate)
	// swagger:route GET /purchases/{transaction_id} Receipt getPurchase
	//
	// Purchase
	//
	// Return a purchase recorded from a previously validated receipt.
	rg.GET("/purchases/:transaction_id", h.getPurchase)
	return nil
}
