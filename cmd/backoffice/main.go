package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	bohttp "github.com/fjod/go_storefront/internal/backoffice/http"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/db"
	"github.com/fjod/go_storefront/internal/orders"
	"github.com/fjod/go_storefront/internal/payment"
	"github.com/fjod/go_storefront/internal/profile"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/pkg/config"
	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const sessionTTL = 24 * time.Hour

func main() {
	cfg := config.LoadBackoffice()

	zlog, err := logger.New(logger.Options{Service: "backoffice", Env: cfg.AppEnv, Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	// Database setup
	conn, err := db.Connect(db.CredentialsFromConfig(cfg))
	if err != nil {
		zlog.Fatal("failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	if err := db.RunMigrations(conn, cfg.MigrationsPath); err != nil {
		zlog.Fatal("failed to run migrations", zap.Error(err))
	}
	zlog.Info("database migrations completed")

	gormDB, err := db.Gorm(conn)
	if err != nil {
		zlog.Fatal("failed to open gorm session", zap.Error(err))
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// Stock reads fall through to Postgres while Redis is away.
		zlog.Warn("redis unreachable, stock cache degraded", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	pingCancel()

	// Domain wiring
	stockCache := catalog.NewRedisStockCache(rdb)
	catalogSvc := catalog.NewService(catalog.NewPostgresRepository(conn), stockCache, zlog)

	payments := payment.NewProvider(payment.NewStatusSource(cfg.PaymentMode), cfg.IntentTTL, zlog)
	defer payments.Close()

	ordersRepo := orders.NewPostgresRepository(conn)
	ordersSvc := orders.NewService(ordersRepo, payments, catalogSvc, cfg.Currency, zlog)

	issuer := session.NewIssuer(cfg.JWTSecret, sessionTTL)

	// Background workers
	var wg sync.WaitGroup
	workersCtx, workersCancel := context.WithCancel(context.Background())

	publisher := orders.NewOutboxPublisher(ordersRepo, zlog, cfg.EventsTopic, cfg.KafkaBrokers...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		publisher.Run(workersCtx)
	}()

	invalidator := catalog.NewInvalidator(stockCache, zlog, cfg.EventsTopic, cfg.KafkaBrokers...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		invalidator.Run(workersCtx)
	}()

	router := bohttp.NewRouter(bohttp.Deps{
		Catalog:  catalogSvc,
		Orders:   ordersSvc,
		Payments: payments,
		Profiles: profile.NewStore(gormDB),
		Issuer:   issuer,
		Log:      zlog,
		Timeout:  cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "backoffice"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("backoffice listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down backoffice...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}
	workersCancel()

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		zlog.Info("workers stopped cleanly")
	case <-shutdownCtx.Done():
		zlog.Warn("workers didn't stop in time")
	}

	if err := publisher.Close(); err != nil {
		zlog.Warn("failed to close outbox writer", zap.Error(err))
	}
	invalidator.Close()
	zlog.Info("backoffice stopped")
}
