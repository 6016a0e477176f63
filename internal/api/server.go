// Package api exposes the tracking service over HTTP: one fixed githook
// endpoint speaking the protocol package's JSON exchange, plus a health
// check. Request-level failure never surfaces as an HTTP error; a decoded
// exchange always answers 200 with the outcome in the body's status field.
package api

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/reftrack/internal/protocol"
	"github.com/reftrack/internal/registry"
)

// ServerOptions configure the HTTP server.
type ServerOptions struct {
	ListenAddr string

	// Rate limit for the githook endpoint; pushes from busy CI systems
	// arrive in bursts, so the burst is sized above the sustained rate.
	GithookRate  float64
	GithookBurst int
}

// Server represents the tracking service's HTTP server.
type Server struct {
	echo  *echo.Echo
	addr  string
	store registry.Store
	sched Scheduler
}

// NewServer creates the API server and wires its routes.
func NewServer(store registry.Store, sched Scheduler, opts ServerOptions) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	if opts.GithookRate <= 0 {
		opts.GithookRate = 20
	}
	if opts.GithookBurst <= 0 {
		opts.GithookBurst = 40
	}
	limiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(opts.GithookRate),
			Burst:     opts.GithookBurst,
			ExpiresIn: 3 * time.Minute,
		}),
	})

	server := &Server{
		echo:  e,
		addr:  opts.ListenAddr,
		store: store,
		sched: sched,
	}

	// Health check endpoint
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	e.POST(protocol.GithookPath, server.githook, limiter)

	return server
}

// githook decodes one UpdateRequest and answers with the handler's reply.
// Undecodable bodies get an error-status body, still with HTTP 200, so the
// client's "failure lives in the body" rule holds for every decoded
// exchange.
func (s *Server) githook(c echo.Context) error {
	var req protocol.UpdateRequest
	if err := c.Bind(&req); err != nil {
		log.Warn().Err(err).Msg("malformed githook request body")
		return c.JSON(http.StatusOK, errorResponse("malformed request body"))
	}

	resp := HandleGithook(c.Request().Context(), s.store, s.sched, &req)
	return c.JSON(http.StatusOK, resp)
}

// Start begins serving and blocks until an interrupt, then shuts down
// gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
