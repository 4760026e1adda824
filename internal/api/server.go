package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tokenwarden/tokenwarden/internal/config"
	"github.com/tokenwarden/tokenwarden/internal/crypto"
	"github.com/tokenwarden/tokenwarden/internal/errors"
	"github.com/tokenwarden/tokenwarden/internal/expiry"
	"github.com/tokenwarden/tokenwarden/internal/logging"
	"github.com/tokenwarden/tokenwarden/internal/metrics"
	"github.com/tokenwarden/tokenwarden/internal/middleware"
	"github.com/tokenwarden/tokenwarden/internal/refresh"
	"github.com/tokenwarden/tokenwarden/internal/scanner"
	"github.com/tokenwarden/tokenwarden/internal/scheduler"
	"github.com/tokenwarden/tokenwarden/internal/store"
)

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	config      config.ServerConfig
	apiConfig   config.APIConfig
	store       store.Store
	scanner     *scanner.Scanner
	pipeline    *scheduler.Pipeline
	executor    *refresh.Executor
	classifier  *expiry.Classifier
	codec       *crypto.Codec
	metrics     *metrics.Metrics
	logger      *logging.Logger
	auditStore  logging.AuditStore
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
	tlsConfig   config.TLSConfig
	now         func() time.Time
}

// Deps carries the server's collaborators.
type Deps struct {
	Store      store.Store
	Scanner    *scanner.Scanner
	Pipeline   *scheduler.Pipeline
	Executor   *refresh.Executor
	Classifier *expiry.Classifier
	Codec      *crypto.Codec
	Metrics    *metrics.Metrics
	Logger     *logging.Logger
	AuditStore logging.AuditStore
}

// Router returns the gin router for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, apiCfg config.APIConfig, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	m := deps.Metrics
	if m == nil {
		m = metrics.NewMetrics("tokenwarden")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewLogger()
	}

	requestsPerMinute := apiCfg.RateLimit.RequestsPerMinute
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1000
	}
	burst := apiCfg.RateLimit.Burst
	if burst <= 0 {
		burst = 100
	}
	rateLimiter := newIPRateLimiter(time.Minute/time.Duration(requestsPerMinute), burst)

	server := &Server{
		router:      gin.New(),
		config:      cfg,
		apiConfig:   apiCfg,
		store:       deps.Store,
		scanner:     deps.Scanner,
		pipeline:    deps.Pipeline,
		executor:    deps.Executor,
		classifier:  deps.Classifier,
		codec:       deps.Codec,
		metrics:     m,
		logger:      logger,
		auditStore:  deps.AuditStore,
		rateLimiter: rateLimiter,
		tlsConfig:   cfg.TLS,
		now:         time.Now,
	}
	server.router.HandleMethodNotAllowed = true

	server.router.Use(gin.Recovery())
	server.router.Use(rateLimitMiddleware(rateLimiter))
	server.router.Use(bodyLimitMiddleware(1 << 20))
	server.router.Use(metrics.Middleware(m, logger))
	server.router.Use(loggingMiddleware(logger))

	server.setupRoutes()
	return server
}

// loggingMiddleware provides structured logging for all requests
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Correlation-ID", correlationID)

		c.Next()

		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_seconds", time.Since(start).Seconds(),
		)
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint - NO authentication required
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Health check - NO authentication required
	s.router.GET("/health", s.handleHealth)

	// OAuth callback - the provider redirect cannot carry an API key
	s.router.GET("/oauth/:platform/callback", handleOAuthCallback)

	authMiddleware := APIKeyAuth(s.apiConfig.Auth.APIKeys, s.apiConfig.Auth.HeaderName, s.logger)

	auditRequests := passthroughMiddleware
	auditRefresh := passthroughMiddleware
	auditDisconnect := passthroughMiddleware
	if s.auditStore != nil {
		s.router.Use(middleware.AuditAuthFailure(s.auditStore))
		auditRequests = middleware.AuditMiddleware(s.auditStore)
		auditRefresh = middleware.AuditCredentialAction(s.auditStore, logging.CredentialRefresh, "manual_refresh")
		auditDisconnect = middleware.AuditCredentialAction(s.auditStore, logging.CredentialDisconnect, "manual_disconnect")
	}

	authed := s.router.Group("")
	authed.Use(authMiddleware, auditRequests)
	{
		authed.POST("/scan", s.handleScan)
		authed.POST("/refresh", auditRefresh, s.handleRefresh)
		authed.GET("/integrations", s.handleListIntegrations)
		authed.GET("/integrations/:id", s.handleGetIntegration)
		authed.POST("/integrations/:id/disconnect", auditDisconnect, s.handleDisconnectIntegration)
	}
}

func passthroughMiddleware(c *gin.Context) {
	c.Next()
}

// Run starts the HTTP or HTTPS server based on TLS configuration
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.HTTPPort)

	if s.tlsConfig.Enabled {
		srv, err := NewHTTPSServer(addr, s.tlsConfig.CertFile, s.tlsConfig.KeyFile, s.tlsConfig.MinVersion, s.router)
		if err != nil {
			return &errors.ErrServerStart{Addr: addr, Err: err}
		}
		s.httpServer = srv
		s.logger.Info("starting HTTPS server", "addr", addr, "min_version", s.tlsConfig.MinVersion)
		return s.httpServer.ListenAndServeTLS("", "")
	}

	if s.httpServer == nil {
		s.httpServer = NewHTTPServer(addr, s.router)
	}
	s.logger.Info("starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server and its store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	if s.httpServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.httpServer.Shutdown(ctx); err != nil {
				errs <- &errors.ErrServerShutdown{Err: err}
			}
		}()
	}

	if s.store != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Close(); err != nil {
				errs <- fmt.Errorf("store close: %w", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(errs)
	var errList []error
	for err := range errs {
		errList = append(errList, err)
	}
	if len(errList) > 0 {
		return fmt.Errorf("shutdown errors: %v", errList)
	}

	s.logger.Info("graceful shutdown completed")
	return nil
}

// handleHealth returns health status
func (s *Server) handleHealth(c *gin.Context) {
	stats := s.store.Stats()
	s.metrics.SetCredentialsStored("active", stats.ActiveCount)
	s.metrics.SetCredentialsStored("disconnected", stats.DisconnectedCount)

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"timestamp":   s.now().UTC(),
		"credentials": stats,
	})
}
