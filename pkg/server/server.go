package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/taji-labs/signing-service/pkg/auth"
	"github.com/taji-labs/signing-service/pkg/config"
	"github.com/taji-labs/signing-service/pkg/gateway"
	"github.com/taji-labs/signing-service/pkg/journal"
	"github.com/taji-labs/signing-service/pkg/metrics"
	"github.com/taji-labs/signing-service/pkg/transactionSigner"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

/*
Server exposes the signing gateway over HTTP.

Routes:
  POST /sign-transaction:
    - Request: { transaction: {nonce, gasPrice, gas, to, value, data, chainId}, privateKey }
    - Validates presence, then signs a legacy EIP-155 transaction
    - Response: { success, signedTransaction, transactionHash, from, message }
    - 400 for caller errors, 500 for signing failures

  GET /health:
    - Liveness: { status: "ok", service, timestamp }

  GET /metrics:
    - Prometheus exposition, only when metrics are enabled

  GET /receipts/:id, GET /receipts?from=0x..&limit=n:
    - Receipt journal lookups, only when a journal is configured

Middleware order: request id, recovery, access log, CORS, rate limit. Bearer auth
and the body size limit apply to the signing and receipt routes only.

The private key is never logged. Request bodies are never logged.
*/
type Server struct {
	cfg        *config.SigningServerConfig
	logger     *zap.Logger
	gateway    *gateway.Gateway
	metrics    *metrics.Metrics
	journal    journal.IReceiptJournal
	verifier   auth.TokenVerifierInterface
	limiter    *rate.Limiter
	now        func() time.Time
	engine     *gin.Engine
	httpServer *http.Server
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithJournal(j journal.IReceiptJournal) Option {
	return func(s *Server) { s.journal = j }
}

func WithTokenVerifier(v auth.TokenVerifierInterface) Option {
	return func(s *Server) { s.verifier = v }
}

func WithSigner(signer transactionSigner.ITransactionSigner) Option {
	return func(s *Server) { s.gateway = gateway.NewGateway(signer) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer builds the routes for cfg. Optional components are supplied as options;
// anything not supplied is disabled.
func NewServer(cfg *config.SigningServerConfig, logger *zap.Logger, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		gateway: gateway.NewGateway(nil),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.RateLimit.Enabled() {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	s.engine = gin.New()
	s.engine.HandleMethodNotAllowed = true
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) registerRoutes() {
	s.engine.Use(
		s.requestID(),
		s.recovery(),
		s.accessLog(),
		s.corsHandler(),
		s.rateLimit(),
	)

	s.engine.GET("/health", s.handleHealth)
	if s.metrics != nil && s.cfg.MetricsEnabled {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	protected := s.engine.Group("/", s.bearerAuth(), s.bodyLimit())
	protected.POST("/sign-transaction", s.handleSignTransaction)
	if s.journal != nil {
		protected.GET("/receipts", s.handleListReceipts)
		protected.GET("/receipts/:id", s.handleGetReceipt)
	}

	s.engine.NoRoute(s.handleNotFound)
	s.engine.NoMethod(s.handleMethodNotAllowed)
}

func (s *Server) corsHandler() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	corsConfig.AddAllowHeaders("Authorization", requestIDHeader)
	corsConfig.AddExposeHeaders(requestIDHeader)
	if s.cfg.AllowsAllOrigins() {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.CORSOrigins
	}
	return cors.New(corsConfig)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "port", s.cfg.Port)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop waits for in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.engine
}
