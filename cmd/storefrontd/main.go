package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"storefront/internal/auth"
	"storefront/internal/common/database"
	"storefront/internal/common/middleware"
	natsclient "storefront/internal/common/nats"
	"storefront/internal/payments"
	"storefront/internal/payments/nowpayments"
	"storefront/internal/wallet"
	walletapi "storefront/internal/wallet/api"
	"storefront/migrations"
)

const eventStream = "STOREFRONT_EVENTS"

// Config holds service configuration
type Config struct {
	Port        int      `envconfig:"PORT" default:"8080"`
	Environment string   `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string   `envconfig:"LOG_FORMAT" default:"json"`
	CORSOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	Database database.Config
	NATS     natsclient.Config
	Auth     auth.Config
	Payments nowpayments.Config
	Issuer   payments.IssuerConfig
}

func main() {
	// Load .env for local development; the file is optional.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Apply schema migrations before taking traffic.
	if err := database.Migrate(cfg.Database.URL, migrations.FS, ".", logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Events degrade gracefully: the service keeps credit-critical paths
	// working when the broker is unreachable.
	var publisher payments.Publisher
	natsClient, err := natsclient.New(ctx, cfg.NATS, logger)
	if err != nil {
		logger.Warn("event publishing disabled", "error", err)
	} else {
		defer natsClient.Close()
		if err := natsClient.EnsureStream(ctx, eventStream, []string{"events.>"}); err != nil {
			logger.Warn("event publishing disabled", "error", err)
		} else {
			publisher = natsclient.NewPublisher(natsClient, logger)
		}
	}

	// Create services
	walletStore := wallet.NewPostgresStore(db)
	walletService := wallet.NewService(walletStore, publisher, logger)
	invoiceStore := payments.NewPostgresStore(db, walletStore)
	processor := nowpayments.NewClient(cfg.Payments, logger)
	verifier := auth.NewJWTVerifier(cfg.Auth)

	// Create handlers
	issuer := payments.NewIssuer(processor, invoiceStore, publisher, cfg.Issuer, logger)
	webhook := payments.NewWebhookHandler(invoiceStore, cfg.Payments.IPNSecret, publisher, logger)
	walletHandler := walletapi.NewHandler(walletService)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// Processor callbacks authenticate by signature, not bearer token.
	r.Post("/webhooks/nowpayments", webhook.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BearerAuth(verifier))
		r.Post("/deposits", issuer.CreateDeposit)
		r.Get("/deposits/{orderID}", issuer.GetDeposit)
		r.Mount("/", walletHandler.Routes())
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting storefront service",
			"port", cfg.Port,
			"environment", cfg.Environment,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
