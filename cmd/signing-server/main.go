package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/taji-labs/signing-service/pkg/auth"
	"github.com/taji-labs/signing-service/pkg/config"
	"github.com/taji-labs/signing-service/pkg/journal"
	badgerJournal "github.com/taji-labs/signing-service/pkg/journal/badger"
	"github.com/taji-labs/signing-service/pkg/journal/memory"
	redisJournal "github.com/taji-labs/signing-service/pkg/journal/redis"
	"github.com/taji-labs/signing-service/pkg/logger"
	"github.com/taji-labs/signing-service/pkg/metrics"
	"github.com/taji-labs/signing-service/pkg/server"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real environment variables take precedence
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load .env file: %v", err)
	}

	app := &cli.App{
		Name:  "signing-server",
		Usage: "Stateless Ethereum transaction signing gateway",
		Description: `Signs legacy Ethereum transactions with EIP-155 replay protection.

Each request carries the transaction fields and the private key to sign with.
Keys are used for a single request and never stored or logged.`,
		Version: "1.0.0",
		Flags:   serverFlags(),
		Action:  runSigningServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func serverFlags() []cli.Flag {
	defaults := config.NewDefaultConfig()
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Value:   defaults.Port,
			Usage:   "HTTP server port",
			EnvVars: []string{config.EnvPort},
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "Enable debug logging",
			EnvVars: []string{config.EnvDebug},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   defaults.LogFormat,
			Usage:   "Log format: console, json or logfmt",
			EnvVars: []string{config.EnvLogFormat},
		},
		&cli.StringSliceFlag{
			Name:    "cors-origin",
			Usage:   "Allowed CORS origin, repeatable (default: all origins)",
			EnvVars: []string{config.EnvCORSOrigins},
		},
		&cli.Int64Flag{
			Name:    "max-body-bytes",
			Value:   defaults.MaxBodyBytes,
			Usage:   "Maximum request body size",
			EnvVars: []string{config.EnvMaxBodyBytes},
		},
		&cli.Float64Flag{
			Name:    "rate-limit-rps",
			Usage:   "Requests per second across all callers, 0 disables",
			EnvVars: []string{config.EnvRateLimitRPS},
		},
		&cli.IntFlag{
			Name:    "rate-limit-burst",
			Usage:   "Rate limiter burst size",
			EnvVars: []string{config.EnvRateLimitBurst},
		},
		&cli.StringFlag{
			Name:    "auth-jwks-url",
			Usage:   "JWKS URL for bearer token verification, empty disables auth",
			EnvVars: []string{config.EnvAuthJWKSURL},
		},
		&cli.StringFlag{
			Name:    "auth-issuer",
			Usage:   "Required token issuer",
			EnvVars: []string{config.EnvAuthIssuer},
		},
		&cli.StringFlag{
			Name:    "auth-audience",
			Usage:   "Required token audience",
			EnvVars: []string{config.EnvAuthAudience},
		},
		&cli.DurationFlag{
			Name:    "auth-refresh-interval",
			Value:   defaults.Auth.RefreshInterval,
			Usage:   "JWKS refresh interval",
			EnvVars: []string{config.EnvAuthRefreshInterval},
		},
		&cli.BoolFlag{
			Name:    "metrics",
			Usage:   "Expose Prometheus metrics on /metrics",
			EnvVars: []string{config.EnvMetricsEnabled},
		},
		&cli.StringFlag{
			Name:    "journal",
			Value:   string(defaults.Journal.Backend),
			Usage:   "Signing receipt journal: none, memory, badger or redis",
			EnvVars: []string{config.EnvJournalBackend},
		},
		&cli.StringFlag{
			Name:    "journal-badger-path",
			Usage:   "Directory of the badger journal",
			EnvVars: []string{config.EnvJournalBadgerPath},
		},
		&cli.StringFlag{
			Name:    "journal-redis-address",
			Usage:   "Redis address (host:port) of the redis journal",
			EnvVars: []string{config.EnvJournalRedisAddress},
		},
		&cli.StringFlag{
			Name:    "journal-redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvJournalRedisPass},
		},
		&cli.IntFlag{
			Name:    "journal-redis-db",
			Usage:   "Redis database number",
			EnvVars: []string{config.EnvJournalRedisDB},
		},
		&cli.StringFlag{
			Name:    "journal-redis-prefix",
			Value:   defaults.Journal.Redis.KeyPrefix,
			Usage:   "Prefix for every redis key",
			EnvVars: []string{config.EnvJournalRedisPrefix},
		},
		&cli.DurationFlag{
			Name:    "shutdown-timeout",
			Value:   defaults.ShutdownTimeout,
			Usage:   "Grace period for in-flight requests on shutdown",
			EnvVars: []string{config.EnvShutdownTimeout},
		},
	}
}

func parseServerConfig(c *cli.Context) *config.SigningServerConfig {
	return &config.SigningServerConfig{
		Port:         c.Int("port"),
		Debug:        c.Bool("debug"),
		LogFormat:    c.String("log-format"),
		CORSOrigins:  c.StringSlice("cors-origin"),
		MaxBodyBytes: c.Int64("max-body-bytes"),
		RateLimit: config.RateLimitConfig{
			RequestsPerSecond: c.Float64("rate-limit-rps"),
			Burst:             c.Int("rate-limit-burst"),
		},
		Auth: config.AuthConfig{
			JWKSURL:         c.String("auth-jwks-url"),
			Issuer:          c.String("auth-issuer"),
			Audience:        c.String("auth-audience"),
			RefreshInterval: c.Duration("auth-refresh-interval"),
		},
		MetricsEnabled: c.Bool("metrics"),
		Journal: config.JournalConfig{
			Backend:    config.JournalBackend(c.String("journal")),
			BadgerPath: c.String("journal-badger-path"),
			Redis: config.JournalRedisConfig{
				Address:   c.String("journal-redis-address"),
				Password:  c.String("journal-redis-password"),
				DB:        c.Int("journal-redis-db"),
				KeyPrefix: c.String("journal-redis-prefix"),
			},
		},
		ShutdownTimeout: c.Duration("shutdown-timeout"),
	}
}

func runSigningServer(c *cli.Context) error {
	cfg := parseServerConfig(c)

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug, Format: cfg.LogFormat})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []server.Option

	if cfg.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, server.WithMetrics(metrics.NewMetricsWithRegistry(registry)))
	}

	if cfg.Auth.Enabled() {
		verifier, err := auth.NewBearerVerifier(ctx, l, cfg.Auth)
		if err != nil {
			return fmt.Errorf("failed to initialize bearer auth: %w", err)
		}
		opts = append(opts, server.WithTokenVerifier(verifier))
	}

	receiptJournal, err := openJournal(cfg.Journal, l)
	if err != nil {
		return fmt.Errorf("failed to open receipt journal: %w", err)
	}
	if receiptJournal != nil {
		defer func() {
			if err := receiptJournal.Close(); err != nil {
				l.Sugar().Warnw("Failed to close receipt journal", "error", err)
			}
		}()
		if err := receiptJournal.HealthCheck(); err != nil {
			return fmt.Errorf("receipt journal unhealthy: %w", err)
		}
		opts = append(opts, server.WithJournal(receiptJournal))
	}

	srv, err := server.NewServer(cfg, l, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	l.Sugar().Infow("Signing server configuration",
		"port", cfg.Port,
		"log_format", cfg.LogFormat,
		"cors_all_origins", cfg.AllowsAllOrigins(),
		"rate_limit_rps", cfg.RateLimit.RequestsPerSecond,
		"auth_enabled", cfg.Auth.Enabled(),
		"metrics_enabled", cfg.MetricsEnabled,
		"journal", cfg.Journal.Backend,
	)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-ctx.Done()
	l.Sugar().Infow("Shutting down signing server", "timeout", cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

// openJournal returns nil for the "none" backend.
func openJournal(cfg config.JournalConfig, l *zap.Logger) (journal.IReceiptJournal, error) {
	switch cfg.Backend {
	case config.JournalBackendNone, "":
		return nil, nil
	case config.JournalBackendMemory:
		l.Sugar().Warnw("Using in-memory receipt journal, receipts are lost on restart")
		return memory.NewMemoryJournal(), nil
	case config.JournalBackendBadger:
		j, err := badgerJournal.NewBadgerJournal(cfg.BadgerPath, l)
		if err != nil {
			return nil, err
		}
		return j, nil
	case config.JournalBackendRedis:
		j, err := redisJournal.NewRedisJournal(&redisJournal.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
		if err != nil {
			return nil, err
		}
		return j, nil
	default:
		return nil, fmt.Errorf("unknown journal backend %q", cfg.Backend)
	}
}
