package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"PriceSentinel/pkg/http/middleware"
	applogger "PriceSentinel/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler registers its routes on the echo instance.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// ServerOption configures Server.
type ServerOption func(*ServerConfig)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SlowThreshold   time.Duration
	CORSOrigins     []string
	Registerer      prometheus.Registerer
	Gatherer        prometheus.Gatherer
}

// Server wraps an echo HTTP server.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	log    *applogger.Logger
	errCh  chan error
}

func NewServer(l *applogger.Logger, handler Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SlowThreshold:   500 * time.Millisecond,
		CORSOrigins:     []string{"*"},
		Registerer:      prometheus.DefaultRegisterer,
		Gatherer:        prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if l == nil {
		l = applogger.Nop()
	}
	l = l.With(applogger.String("component", "http"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.Recover(l))
	e.Use(middleware.Metrics(middleware.NewHTTPMetrics(cfg.Registerer), l, cfg.SlowThreshold))
	e.Use(middleware.RequestLogging(l))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORS(cfg.CORSOrigins))
	}

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))

	return &Server{echo: e, config: cfg, log: l, errCh: make(chan error, 1)}
}

// Start binds the listener synchronously, then serves in the background.
// Serve errors after start are reported on Errors().
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.echo.Listener = ln

	go func() {
		s.log.Info("listening", applogger.String("addr", ln.Addr().String()), applogger.Strings("cors_origins", s.config.CORSOrigins))
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
	}()
	return nil
}

func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Stop shuts down gracefully within the configured timeout.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("stopped")
	return nil
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func WithHost(host string) ServerOption {
	return func(c *ServerConfig) {
		c.Host = host
	}
}

func WithPort(port int) ServerOption {
	return func(c *ServerConfig) {
		c.Port = port
	}
}

func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

// WithSlowThreshold sets the latency above which requests are logged as slow.
func WithSlowThreshold(d time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.SlowThreshold = d
	}
}

// WithCORS sets the browser origins allowed on the API. No origins turns CORS off.
func WithCORS(origins ...string) ServerOption {
	return func(c *ServerConfig) {
		c.CORSOrigins = origins
	}
}

// WithRegistry points request metrics and /metrics at a registry other than the default.
func WithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) ServerOption {
	return func(c *ServerConfig) {
		c.Registerer = reg
		c.Gatherer = g
	}
}
