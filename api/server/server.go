// Package server contains the main server struct and methods
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/blacktop/go-receipt/api"
	"github.com/blacktop/go-receipt/api/server/routes"
	"github.com/blacktop/go-receipt/internal/db"
	"github.com/blacktop/go-receipt/pkg/receipt"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

// Config is the server config
type Config struct {
	Host      string
	Port      int
	Debug     bool
	CacheSize int

	Verifier receipt.Verifier
	DB       db.Database
}

// Server is the main server struct
type Server struct {
	router *gin.Engine
	server *http.Server
	conf   *Config
}

// NewServer creates a new server and registers its routes
func NewServer(conf *Config) (*Server, error) {
	router := gin.New()
	router.Use(gin.Recovery())
	if conf.Debug {
		router.Use(gin.Logger())
	}

	rg := router.Group("/v" + api.DefaultVersion)
	if err := routes.Add(rg, &routes.Deps{
		Verifier:  conf.Verifier,
		DB:        conf.DB,
		CacheSize: conf.CacheSize,
	}); err != nil {
		return nil, err
	}

	return &Server{
		router: router,
		conf:   conf,
		server: &http.Server{
			Addr:              net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port)),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler returns the server's http.Handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called
func (s *Server) Start() error {
	log.WithField("addr", s.server.Addr).Info("starting receipt daemon")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}
