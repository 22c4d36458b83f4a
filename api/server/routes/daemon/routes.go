// Package daemon provides the health and version routes
package daemon

import (
	"net/http"
	"runtime"

	"github.com/apex/log"
	"github.com/blacktop/go-receipt/api"
	"github.com/blacktop/go-receipt/api/types"
	"github.com/gin-gonic/gin"
)

// Pinger is a dependency the daemon cannot serve receipts without.
type Pinger interface {
	Ping() error
}

// AddRoutes adds the daemon routes to the router
func AddRoutes(rg *gin.RouterGroup, store Pinger) {
	// swagger:route HEAD /_ping Daemon headDaemonPing
	//
	// Ping
	//
	// 200 when the daemon and its purchase store are up, 503 otherwise.
	rg.HEAD("/_ping", ping(store))
	// swagger:route GET /_ping Daemon getDaemonPing
	//
	// Ping
	//
	// "OK" when the daemon and its purchase store are up.
	rg.GET("/_ping", ping(store))
	// swagger:route GET /version Daemon getDaemonVersion
	//
	// Version
	//
	// Build and API version of the daemon.
	rg.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, types.Version{
			APIVersion:     api.DefaultVersion,
			OSType:         runtime.GOOS,
			BuilderVersion: types.BuildVersion,
			BuildTime:      types.BuildTime,
			GoVersion:      runtime.Version(),
		})
	})
}

func ping(store Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")

		code, body := http.StatusOK, "OK"
		if store != nil {
			if err := store.Ping(); err != nil {
				log.WithError(err).Warn("purchase store unavailable")
				code, body = http.StatusServiceUnavailable, "store unavailable"
			}
		}
		if c.Request.Method == http.MethodHead {
			c.Status(code)
			return
		}
		c.String(code, body)
	}
}
