// Package main provides the HomematicIP exporter entry point. The exporter
// polls a HomematicIP access point for device state and exposes it as
// Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/auhlig/homematicip-exporter/internal/api"
	"github.com/auhlig/homematicip-exporter/internal/config"
	"github.com/auhlig/homematicip-exporter/internal/health"
	"github.com/auhlig/homematicip-exporter/internal/metrics"
	"github.com/auhlig/homematicip-exporter/internal/server"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func setupLogger(cfg config.Config) {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func main() {
	fs := config.NewFlagSet()
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if showVersion, _ := fs.GetBool("version"); showVersion {
		fmt.Printf("homematicip-exporter %s (built: %s)\n", version, buildTime)
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Printf("go version: %s\n", info.GoVersion)
		}
		os.Exit(0)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg)

	slog.Info("starting homematicip-exporter",
		"version", version,
		"build_time", buildTime,
		"metric_port", cfg.MetricPort,
		"collect_interval", cfg.CollectInterval,
		"config_file", cfg.ConfigFile,
		"websocket", cfg.EnableWebsocket)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session := api.NewSession(cfg.AuthToken, cfg.AccessPoint, cfg.LookupURL, cfg.FetchTimeout)
	if err := session.Connect(ctx); err != nil {
		// Not fatal: the exporter must stay scrapeable and keep retrying
		// so operators can see the failure on its own metrics.
		slog.Warn("initial connection to access point failed, will retry", "error", err)
	}

	registry := metrics.NewRegistry()
	collector := metrics.NewCollector(cfg, session, registry)

	if cfg.EnableWebsocket {
		listener := api.NewEventListener(session)
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("websocket listener stopped", "error", err)
			}
		}()
		collector.WithEvents(listener.Events())
	}

	checker := health.NewHealthChecker()
	checker.RegisterComponent(health.NewSessionHealthChecker(session))
	checker.RegisterComponent(health.NewCollectorHealthChecker(
		collector.LastSuccess, collector.LastError, collector.Interval()))

	go func() {
		if err := collector.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("collector stopped", "error", err)
		}
	}()

	srv := server.New(cfg.MetricPort, registry, checker)
	if err := srv.Run(ctx); err != nil {
		slog.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}
