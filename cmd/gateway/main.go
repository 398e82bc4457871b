package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/resumekit/gateway/config"
	"github.com/resumekit/gateway/internal/handler"
	"github.com/resumekit/gateway/internal/healthmonitor"
	"github.com/resumekit/gateway/internal/httpserver"
	"github.com/resumekit/gateway/internal/metrics"
	"github.com/resumekit/gateway/internal/registry"
	"github.com/resumekit/gateway/internal/status"
	"github.com/resumekit/gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg, err := buildRegistry(cfg)
	if err != nil {
		log.Error("Failed to build service registry", slog.Any("err", err))
		os.Exit(1)
	}

	table := status.NewTable()
	monitor := healthmonitor.New(reg, table, cfg.HealthCheckInterval(), log)
	collector := metrics.NewCollector(1000, log)

	gateway := handler.New(reg, table, monitor, collector, log)

	// Bind the port before anything else so a conflict fails fast.
	srv, err := httpserver.New(cfg.Server.Address, gateway.Router(cfg.Server.CORSOrigins))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	// Cold-start sweep: every service gets a status entry before the
	// gateway accepts its first connection.
	log.Info("Running startup health sweep", slog.Int("services", reg.Len()))
	monitor.ProbeAll(ctx)

	collector.Start(ctx)
	go monitor.Run(ctx)

	srvErrCh := make(chan error, 1)

	go func() {
		log.Info("Gateway listening", slog.String("addr", srv.Addr()))
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error running gateway", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	entries := make([]registry.Entry, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		entries = append(entries, registry.Entry{
			Name:    svc.Name,
			BaseURL: svc.BaseURL,
			Prefix:  svc.Prefix,
		})
	}

	return registry.New(entries)
}
