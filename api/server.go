package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// Server is the HTTP presentation of a task store.
type Server struct {
	echo   *echo.Echo
	detach func()
}

// NewServer builds the echo instance with metrics, logging and the task
// routes. Each server has its own prometheus registry.
func NewServer(store TaskStore, logger *log.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}

	reg := prometheus.NewRegistry()
	e.Use(middleware.Recover())
	e.Use(RequestLogger(logger))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "tasklist",
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))

	detach := Register(e, store, logger, reg)
	return &Server{echo: e, detach: detach}
}

// ServeHTTP lets the server be mounted or driven by httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends open streams, detaches from the store and waits for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.detach()
	return s.echo.Shutdown(ctx)
}
