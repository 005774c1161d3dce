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

	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/pkg/startup"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	zapLogger, err := newZapLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	logger := zapadapter.NewZapEctoLogger(zapLogger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		Enabled:     cfg.TracingEnabled,
		OTLP: exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  cfg.OTLPTimeout,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}

	a := newApp(cfg, logger)
	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	a.register(boot)

	if err := boot.Start(ctx); err != nil {
		return err
	}
	a.health.SetReady(true)

	serveErr := make(chan error, 1)
	go func() {
		logger.WithContext(ctx).Infof("%s listening on :%d", cfg.AppName, cfg.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			logger.WithContext(ctx).WithError(err).Error("HTTP server failed")
		}
	}

	a.health.SetReady(false)
	logger.WithContext(ctx).Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := a.server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.WithContext(shutdownCtx).WithError(shutdownErr).Error("HTTP server shutdown failed")
	}
	if stopErr := boot.Stop(shutdownCtx); stopErr != nil {
		logger.WithContext(shutdownCtx).WithError(stopErr).Error("Dependency shutdown failed")
	}
	if tracingErr := shutdownTracing(shutdownCtx); tracingErr != nil {
		logger.WithContext(shutdownCtx).WithError(tracingErr).Warn("Tracing shutdown failed")
	}
	return err
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapConfig.Level = level
	zapConfig.InitialFields = map[string]any{"service": cfg.AppName, "version": cfg.Version}

	return zapConfig.Build()
}

