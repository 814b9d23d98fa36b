// Package rest provides the progress server of a running benchmark suite.
package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	fiberws "github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"yqhp/bench-engine/pkg/types"
)

// ResultSource provides the latest suite result, nil while the first run is in progress.
type ResultSource interface {
	Latest() *types.SuiteResult
}

// AlertSource exposes the alert lifecycle.
type AlertSource interface {
	Alerts() []types.Alert
	Acknowledge(id string) error
	Resolve(id string) error
}

// Config holds the configuration for the server.
type Config struct {
	// Address is the address to listen on (e.g., ":8090").
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	EnableCORS   bool
}

// DefaultConfig returns a default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      ":8090",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		EnableCORS:   true,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithResults sets the result source.
func WithResults(r ResultSource) Option {
	return func(s *Server) { s.results = r }
}

// WithAlerts sets the alert source.
func WithAlerts(a AlertSource) Option {
	return func(s *Server) { s.alerts = a }
}

// WithRegistry exposes a Prometheus registry on /metrics.
func WithRegistry(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server serves health, results, alerts, Prometheus metrics and the live event stream.
type Server struct {
	app      *fiber.App
	config   *Config
	hub      *Hub
	results  ResultSource
	alerts   AlertSource
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	started  time.Time
}

// NewServer creates a new server.
func NewServer(config *Config, opts ...Option) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		config:  config,
		logger:  zap.NewNop(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.logger.Named("ws"))

	s.app = fiber.New(fiber.Config{
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		ErrorHandler:          customErrorHandler,
		AppName:               "Bench Engine",
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
	}))

	if s.config.EnableCORS {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,POST,OPTIONS",
			AllowHeaders: "Origin,Content-Type,Accept",
			MaxAge:       86400,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthCheck)

	api := s.app.Group("/api/v1")
	api.Get("/health", s.healthCheck)
	api.Get("/result", s.getResult)
	api.Get("/alerts", s.listAlerts)
	api.Post("/alerts/:id/ack", s.acknowledgeAlert)
	api.Post("/alerts/:id/resolve", s.resolveAlert)

	if s.gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/events", fiberws.New(s.hub.handleConnection))
}

// Hub returns the websocket hub that broadcasts suite events.
func (s *Server) Hub() *Hub {
	return s.hub
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// StartWithContext serves until ctx is done or the listener fails.
func (s *Server) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.config.Address)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(5 * time.Second)
	case err := <-errCh:
		return err
	}
}

// Shutdown closes websocket clients and stops the server.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.hub.Close()
	return s.app.ShutdownWithTimeout(timeout)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}
