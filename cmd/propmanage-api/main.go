// Command propmanage-api runs the development property-management API that
// propsync clients talk to.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/propmanage/propsync/internal/config"
	"github.com/propmanage/propsync/internal/dataset"
	"github.com/propmanage/propsync/internal/httpapi"
	"github.com/propmanage/propsync/internal/logging"
	"github.com/propmanage/propsync/internal/metrics"
)

func main() {
	configPath := flag.String("config", os.Getenv(config.EnvPrefix+"CONFIG"), "path to a YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("propmanage-api: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	backend, err := dataset.BuildStateBackendFromDSN(cfg.Server.StateDSN)
	if err != nil {
		return fmt.Errorf("failed to initialize state backend: %w", err)
	}
	repo, err := dataset.Open(dataset.Options{
		Backend: backend,
		Seed:    cfg.Server.Seed,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Warn("closing state backend failed", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	server := httpapi.NewServer(repo, serverConfig(cfg.Server), httpapi.Options{
		Logger:   logger,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("propmanage-api listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("state", backendScheme(cfg.Server.StateDSN)),
			zap.Bool("seed", cfg.Server.Seed),
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	server.Hub().Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func serverConfig(c config.ServerConfig) httpapi.ServerConfig {
	return httpapi.ServerConfig{
		JWTSecret:       c.JWTSecret,
		TokenTTL:        c.TokenTTL,
		RefreshTTL:      c.RefreshTTL,
		RateLimitMax:    c.RateLimitMax,
		RateLimitWindow: c.RateLimitWindow,
		MaxBodyBytes:    c.MaxBodyBytes,
	}
}

// backendScheme names the state backend for logs without leaking
// credentials embedded in the DSN.
func backendScheme(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i]
	}
	if dsn == "" {
		return "memory"
	}
	return "file"
}
