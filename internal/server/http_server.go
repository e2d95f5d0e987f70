package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tyrowin/groupchat/internal/chat"
	"github.com/Tyrowin/groupchat/internal/config"
)

// Server serves the JSON API and the event stream for one chat service.
type Server struct {
	cfg      *config.Config
	svc      *chat.Service
	hub      *Hub
	origins  *OriginPolicy
	upgrader websocket.Upgrader
	echo     *echo.Echo
}

// New wires the API routes for svc. Request metrics are registered with reg.
func New(cfg *config.Config, svc *chat.Service, hub *Hub, reg prometheus.Registerer) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		hub:     hub,
		origins: NewOriginPolicy(cfg.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.Check,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.Level())
	// Rate limits key on the peer address, so forwarding headers are ignored.
	e.IPExtractor = echo.ExtractIPDirect()

	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return cuid2.Generate() },
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "groupchat",
		Registerer: reg,
	}))
	e.Use(middleware.Recover())

	headers := []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     s.origins.Origins(),
		AllowHeaders:     headers,
		AllowCredentials: true,
	}))

	s.echo = e
	s.setupRoutes()
	return s
}

// Handler exposes the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// CreateServer creates an HTTP server with production timeouts.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewMetricsHandler serves the collectors gathered by g.
func NewMetricsHandler(g prometheus.Gatherer) http.Handler {
	metrics := echo.New()
	metrics.HideBanner = true
	metrics.HidePort = true
	metrics.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: g}))
	return metrics
}

// StartServer listens until the server is shut down.
func StartServer(server *http.Server) error {
	log.Infof("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server, waiting for active
// requests until timeout.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Infof("Shutting down HTTP server on %s...", server.Addr)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Infof("HTTP server shutdown completed")
	return nil
}
