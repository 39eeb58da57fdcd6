/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the mentor booking service. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment)
  2. Build the zap logger for the environment
  3. Open the configured store backend
  4. Wire booking, checkout, and ledger services
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store
  4. Exit

ENVIRONMENT:
  See config/config.go for the full variable list.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Environment variables
*/
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/mentorbook/api"
	"github.com/warp/mentorbook/booking"
	"github.com/warp/mentorbook/checkout"
	"github.com/warp/mentorbook/config"
	"github.com/warp/mentorbook/ledger"
	"github.com/warp/mentorbook/notify"
	"github.com/warp/mentorbook/schedule"
	"github.com/warp/mentorbook/store/memory"
	"github.com/warp/mentorbook/store/postgres"
	"github.com/warp/mentorbook/store/sqlite"
)

// appStore is the combined persistence surface the wiring needs. Each
// backend implements every interface on a single value, which keeps
// verify-and-commit inside one storage engine.
type appStore interface {
	schedule.Store
	booking.Store
	checkout.SessionStore
	ledger.Store
	ledger.PayoutStore
}

func openStore(cfg *config.Config) (appStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	case config.DriverPostgres:
		st, err := postgres.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	default:
		return memory.New(), func() {}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	st, closeStore, err := openStore(cfg)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	notifier := notify.NewLogNotifier(logger)
	ledgerSvc := ledger.New(st)
	payouts := ledger.NewPayoutService(ledgerSvc, st, notifier, logger)
	bookings := booking.NewService(st, st, notifier, logger)
	coordinator := checkout.NewCoordinator(checkout.Config{
		Provider:           checkout.NewStaticProvider(),
		Slots:              st,
		Bookings:           st,
		Ledger:             ledgerSvc,
		Sessions:           st,
		Notifier:           notifier,
		Logger:             logger,
		PlatformFeePercent: cfg.PlatformFeePercent,
		SuccessURL:         cfg.CheckoutSuccessURL,
		CancelURL:          cfg.CheckoutCancelURL,
	})

	handler := api.NewHandler(st, bookings, coordinator, ledgerSvc, payouts, logger)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("store", cfg.StoreDriver),
			zap.String("env", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
