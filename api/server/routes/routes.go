// Package routes contains all the routes for the API
package routes

import (
	"github.com/blacktop/go-receipt/api/server/routes/daemon"
	"github.com/blacktop/go-receipt/api/server/routes/receipts"
	"github.com/blacktop/go-receipt/internal/db"
	"github.com/blacktop/go-receipt/pkg/receipt"
	"github.com/gin-gonic/gin"
)

// Deps are the services the routes share
type Deps struct {
	Verifier  receipt.Verifier
	DB        db.Database
	CacheSize int
}

// Add adds the command routes to the router
func Add(rg *gin.RouterGroup, deps *Deps) error {
	daemon.AddRoutes(rg, deps.DB)
	return receipts.AddRoutes(rg, deps.Verifier, deps.DB, deps.CacheSize)
}
