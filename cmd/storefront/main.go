package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/internal/stock"
	"github.com/fjod/go_storefront/internal/storage"
	sfhttp "github.com/fjod/go_storefront/internal/storefront/http"
	"github.com/fjod/go_storefront/pkg/config"
	"github.com/fjod/go_storefront/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const sessionTTL = 24 * time.Hour

func main() {
	cfg := config.LoadStorefront()

	zlog, err := logger.New(logger.Options{Service: "storefront", Env: cfg.AppEnv, Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	openCtx, openCancel := context.WithTimeout(context.Background(), 10*time.Second)
	kv, err := storage.Open(openCtx, cfg)
	openCancel()
	if err != nil {
		zlog.Fatal("failed to open cart storage", zap.String("backend", cfg.StorageBackend), zap.Error(err))
	}
	defer kv.Close()
	zlog.Info("cart storage ready", zap.String("backend", cfg.StorageBackend))

	fetcher := stock.NewHTTPFetcher(cfg.BackofficeURL, cfg.RequestTimeout, zlog)
	backoffice := checkout.NewBackofficeClient(cfg.BackofficeURL, cfg.RequestTimeout, zlog)

	sessions, err := sfhttp.NewRegistry(kv, fetcher, cfg.MaxSessions, cfg.StockFetchParallel, zlog)
	if err != nil {
		zlog.Fatal("failed to create session registry", zap.Error(err))
	}

	router := sfhttp.NewRouter(sfhttp.Deps{
		Sessions:     sessions,
		Products:     backoffice,
		Fetcher:      fetcher,
		Checkout:     checkout.NewOrchestrator(backoffice, backoffice, backoffice, cfg.Currency, zlog),
		Orders:       backoffice,
		Issuer:       session.NewIssuer(cfg.JWTSecret, sessionTTL),
		Log:          zlog,
		Timeout:      cfg.RequestTimeout,
		SecureCookie: cfg.AppEnv != "dev",
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("storefront listening", zap.String("port", cfg.HTTPPort), zap.String("backoffice", cfg.BackofficeURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down storefront...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}
	zlog.Info("storefront stopped")
}
