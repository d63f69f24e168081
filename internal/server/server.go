// Package server exposes the tenant lifecycle API over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tenantd/internal/cluster"
	"tenantd/internal/config"
	"tenantd/internal/orchestrator"
	"tenantd/internal/release"
	"tenantd/internal/status"
	"tenantd/pkg/logging"
)

// Server wires the orchestrator and status reporter into an Echo HTTP
// server.
type Server struct {
	cfg      config.ServerConfig
	orch     *orchestrator.Orchestrator
	reporter *status.Reporter
	gateway  cluster.Gateway
	driver   release.Driver
	version  string
	echo     *echo.Echo
}

// New assembles the server and registers all routes.
func New(cfg config.ServerConfig, orch *orchestrator.Orchestrator, reporter *status.Reporter, gateway cluster.Gateway, driver release.Driver, version string) *Server {
	s := &Server{
		cfg:      cfg,
		orch:     orch,
		reporter: reporter,
		gateway:  gateway,
		driver:   driver,
		version:  version,
		echo:     echo.New(),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.Use(requestIDMiddleware())
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	}))
	s.echo.Use(observeMiddleware())

	s.echo.POST("/tenants", s.handleCreateTenant)
	s.echo.GET("/tenants", s.handleListTenants)
	s.echo.GET("/tenants/:id", s.handleGetTenant)
	s.echo.DELETE("/tenants/:id", s.handleDeleteTenant)
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Start blocks serving HTTP until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	logging.Info("Server", "Listening on %s", addr)
	err := s.echo.Start(addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
