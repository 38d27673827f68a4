package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/recordflow/internal/config"
	"github.com/vyrodovalexey/recordflow/internal/health"
	"github.com/vyrodovalexey/recordflow/internal/observability"
	"github.com/vyrodovalexey/recordflow/internal/transform"
)

// tracerName is the instrumentation scope of HTTP server spans.
const tracerName = "recordflow/server"

// API routes.
const (
	RouteRecords  = "/v1/records"
	RouteBatch    = "/v1/records/batch"
	RouteSnapshot = "/v1/metrics"
	RouteHealth   = "/health"
	RouteReady    = "/ready"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Processor is the transformer surface the API needs.
type Processor interface {
	ProcessJSON(ctx context.Context, data []byte) (transform.Record, error)
	ProcessBatch(ctx context.Context, inputs []interface{}) []transform.BatchResult
	Metrics() transform.MetricsSnapshot
}

// Server is the HTTP API in front of a record transformer.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	processor  Processor
	config     *config.ServerConfig

	logger      observability.Logger
	checker     *health.Checker
	promHandler http.Handler
	metricsPath string
	metrics     *Metrics
	tracer      trace.Tracer

	mu      sync.Mutex
	running bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHealthChecker serves /health and /ready from checker.
func WithHealthChecker(checker *health.Checker) Option {
	return func(s *Server) {
		s.checker = checker
	}
}

// WithPrometheusHandler serves h at path.
func WithPrometheusHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metricsPath = path
		s.promHandler = h
	}
}

// WithMetrics sets the HTTP request metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTracer sets the tracer used for server spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

// New creates a server for processor. A nil cfg uses defaults.
func New(cfg *config.ServerConfig, processor Processor, opts ...Option) *Server {
	if cfg == nil {
		defaults := config.DefaultConfig()
		cfg = defaults.Spec.Server
	}

	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:    gin.New(),
		processor: processor,
		config:    cfg,
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	s.httpServer = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  cfg.ReadTimeout.Duration(),
		WriteTimeout: cfg.WriteTimeout.Duration(),
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.Use(
		Recovery(s.logger),
		RequestID(),
		Tracing(s.tracer),
		Logging(s.logger),
	)
	if s.metrics != nil {
		s.engine.Use(Instrument(s.metrics))
	}

	if s.checker != nil {
		s.engine.GET(RouteHealth, s.checker.GinHealthHandler())
		s.engine.GET(RouteReady, s.checker.GinReadinessHandler())
	}
	if s.promHandler != nil && s.metricsPath != "" {
		s.engine.GET(s.metricsPath, gin.WrapH(s.promHandler))
	}

	v1 := s.engine.Group("", BodyLimit(s.config.MaxBodyBytes))
	v1.POST(RouteRecords, s.handleRecord)
	v1.POST(RouteBatch, s.handleBatch)
	v1.GET(RouteSnapshot, s.handleSnapshot)
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve accepts connections on ln until Shutdown. Serving after Shutdown
// returns immediately.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		_ = ln.Close()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("starting HTTP server",
		observability.String("address", ln.Addr().String()),
		observability.Duration("readTimeout", s.config.ReadTimeout.Duration()),
		observability.Duration("writeTimeout", s.config.WriteTimeout.Duration()),
	)

	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done. It may be called before or after Serve.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// IsRunning returns whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
