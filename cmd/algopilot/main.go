package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/algopilot/internal/adapter/driven/smartapi"
	sqliteadapter "github.com/ericfisherdev/algopilot/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/algopilot/internal/adapter/driving/http"
	"github.com/ericfisherdev/algopilot/internal/application"
	"github.com/ericfisherdev/algopilot/internal/config"
	"github.com/ericfisherdev/algopilot/internal/metrics"
)

const maintenanceInterval = time.Hour

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"broker_base_url", cfg.BrokerBaseURL,
		"api_timeout", cfg.APITimeout,
		"credential_storage", cfg.HasSecretKey(),
	)
	if !cfg.HasSecretKey() {
		slog.Warn("ALGOPILOT_SECRET_KEY not set, broker credentials and sessions cannot be stored")
	}

	jwtSecret := cfg.JWTSecret
	if jwtSecret == nil {
		jwtSecret = make([]byte, 32)
		if _, err := rand.Read(jwtSecret); err != nil {
			return err
		}
		slog.Warn("ALGOPILOT_JWT_SECRET not set, operator tokens will not survive a restart")
	}

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	userStore := sqliteadapter.NewUserRepo(db)
	accountStore := sqliteadapter.NewAccountRepo(db)
	credentialStore, err := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)
	if err != nil {
		return err
	}
	sessionStore, err := sqliteadapter.NewSessionRepo(db, cfg.SecretKey)
	if err != nil {
		return err
	}
	settingsStore := sqliteadapter.NewSettingsRepo(db)
	strategyStore := sqliteadapter.NewStrategyRepo(db)
	orderLedger := sqliteadapter.NewOrderRepo(db)

	// 6. Metrics registry shared by the broker client and /metrics.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 7. Broker client factory. The network identity is resolved once and
	// shared by every client.
	clientOpts := []smartapi.Option{
		smartapi.WithNetworkIdentity(smartapi.NewNetworkIdentity(cfg.IPLookupTimeout, cfg.PublicIPServices)),
		smartapi.WithTimeout(cfg.APITimeout),
		smartapi.WithMetrics(m),
	}
	if cfg.HostPolicy != nil {
		clientOpts = append(clientOpts, smartapi.WithHostPolicy(smartapi.HostPolicy(cfg.HostPolicy)))
	}
	factory := smartapi.NewFactory(clientOpts...)

	// 8. Application services.
	manager := application.NewSessionManager(factory, m)
	authSvc := application.NewAuthService(userStore, jwtSecret, cfg.JWTTTL)
	accountSvc := application.NewAccountService(accountStore, credentialStore, sessionStore, manager, cfg.BrokerBaseURL)
	sessionSvc := application.NewSessionService(manager, accountStore, credentialStore, sessionStore)
	settingsSvc := application.NewSettingsService(settingsStore)
	strategySvc := application.NewStrategyService(accountStore, strategyStore)
	orderSvc := application.NewOrderService(sessionSvc, settingsSvc, accountStore, strategyStore, orderLedger)

	if cfg.HasSecretKey() {
		go application.NewMaintenanceService(sessionStore, maintenanceInterval).Start(ctx)
	}

	// 9. HTTP server.
	apiHandler := httphandler.NewHandler(authSvc, accountSvc, sessionSvc, settingsSvc, strategySvc, orderSvc, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, reg, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.APITimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("algopilot started", "listen_addr", cfg.ListenAddr)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// The live session is dropped locally; the broker token simply expires.
	manager.Deactivate()

	slog.Info("shutdown complete")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
