package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/pshannon/claimspay/internal"
	"github.com/pshannon/claimspay/internal/finance"
	"github.com/pshannon/claimspay/internal/handler/api"
	"github.com/pshannon/claimspay/internal/identity"
	"github.com/pshannon/claimspay/internal/kv"
	"github.com/pshannon/claimspay/internal/middleware"
	"github.com/pshannon/claimspay/internal/service"
	"github.com/pshannon/claimspay/internal/telemetry"
	"github.com/pshannon/claimspay/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)
	logger.Info("starting claimspay", "env", cfg.Env, "port", cfg.Port)

	store, err := kv.NewStore(kv.Config{
		Provider:      cfg.KV.Provider,
		LocalPath:     cfg.KV.LocalPath,
		SQLitePath:    cfg.KV.SQLitePath,
		RedisAddr:     cfg.KV.RedisAddr,
		RedisPassword: cfg.KV.RedisPassword,
		RedisDB:       cfg.KV.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	financeClient, err := finance.NewHTTPClient(finance.HTTPConfig{
		BaseURL: cfg.Finance.BaseURL,
		Token:   cfg.Finance.Token,
		Timeout: cfg.Finance.Timeout,
		Retries: cfg.Finance.Retries,
	})
	if err != nil {
		return fmt.Errorf("init finance client: %w", err)
	}

	idgen, err := identity.NewGenerator(cfg.IDOffset)
	if err != nil {
		return fmt.Errorf("init identity generator: %w", err)
	}

	httpMetrics := middleware.NewMetrics("claimspay")
	bizMetrics := telemetry.NewMetrics("claimspay")

	ledger := service.NewLedgerService(store, logger, bizMetrics)
	registry := service.NewRegistryService(store, ledger, idgen, logger)
	reconciler := service.NewReconcilerService(financeClient, registry, ledger, idgen, logger, bizMetrics)
	payments := service.NewPaymentService(registry, ledger, financeClient, idgen, logger, bizMetrics)
	refresher := worker.NewRefreshWorker(reconciler, logger, bizMetrics, cfg.Refresh.Interval, cfg.Refresh.Concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go refresher.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(httpMetrics.Middleware())
	e.Use(middleware.WithRequestLogger(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(httpMetrics.Handler()))

	apiHandler := api.NewHandler(reconciler, payments, registry, refresher, logger)
	apiHandler.Register(e.Group("/api"))

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
