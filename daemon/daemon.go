// Package daemon provides the daemon interface and implementation.
package daemon

import (
	"errors"
	"fmt"

	"github.com/blacktop/go-receipt/api/server"
	"github.com/blacktop/go-receipt/internal/config"
	"github.com/blacktop/go-receipt/internal/db"
	"github.com/blacktop/go-receipt/pkg/receipt"
	"github.com/gin-gonic/gin"
)

// Daemon is the interface that describes a receipt daemon.
type Daemon interface {
	// Start starts the daemon and blocks until it is stopped.
	Start() error
	// Stop stops the daemon.
	Stop() error
}

type daemon struct {
	server *server.Server
	db     db.Database
}

// NewDaemon opens the purchase store and builds the server. Nothing is served
// until Start.
func NewDaemon(conf *config.Config, v receipt.Verifier) (Daemon, error) {
	if conf.Daemon.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	store, err := db.New(conf.Database.Driver, conf.Database.Path, conf.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", conf.Database.Driver, err)
	}
	srv, err := server.NewServer(&server.Config{
		Host:      conf.Daemon.Host,
		Port:      conf.Daemon.Port,
		Debug:     conf.Daemon.Debug,
		CacheSize: conf.Daemon.CacheSize,
		Verifier:  v,
		DB:        store,
	})
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return &daemon{server: srv, db: store}, nil
}

func (d *daemon) Start() error {
	return d.server.Start()
}

func (d *daemon) Stop() error {
	return errors.Join(d.server.Stop(), d.db.Close())
}
