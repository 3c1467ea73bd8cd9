package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NERVsystems/poimap/pkg/config"
	"github.com/NERVsystems/poimap/pkg/logging"
	"github.com/NERVsystems/poimap/pkg/monitoring"
	"github.com/NERVsystems/poimap/pkg/server"
	"github.com/NERVsystems/poimap/pkg/tools"
	"github.com/NERVsystems/poimap/pkg/tracing"
	ver "github.com/NERVsystems/poimap/pkg/version"
)

var (
	configPath      string
	showVersionFlag bool
	debug           bool
	transport       string
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file (default: ./poimap.yaml if present)")
	flag.BoolVar(&showVersionFlag, "version", false, "Display version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&transport, "transport", "", "MCP transport: stdio or http (overrides mcp.transport)")
}

func main() {
	flag.Parse()

	if showVersionFlag {
		fmt.Println(ver.String())
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "poimap: %v\n", err)
		os.Exit(1)
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	if transport != "" {
		cfg.MCP.Transport = transport
	}

	// stdout carries the stdio transport; logs always go to stderr
	logger := logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("poimap stopped with an error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		Environment: cfg.Tracing.Environment,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, ver.BuildVersion)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
		if cfg.Tracing.Endpoint != "" {
			logger.Info("OpenTelemetry tracing enabled",
				"endpoint", cfg.Tracing.Endpoint,
				"sample_ratio", cfg.Tracing.SampleRatio)
		}
	}

	logger.Info("starting poimap",
		"version", ver.BuildVersion,
		"dataset", cfg.Dataset.URL,
		"tiles", cfg.Tiles.URLTemplate,
		"transport", cfg.MCP.Transport,
		"monitoring_enabled", cfg.Monitoring.Enabled)

	var healthChecker *monitoring.HealthChecker
	if cfg.Monitoring.Enabled {
		healthChecker = monitoring.NewHealthChecker(monitoring.ServiceName, ver.BuildVersion)
		defer healthChecker.Shutdown()
	}

	app, err := newApp(cfg, healthChecker, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.Monitoring.Enabled {
		stopMonitoring := startMonitoringServer(cfg.Monitoring.Addr, healthChecker, logger)
		defer stopMonitoring()
	}

	app.Start(ctx)

	mcpSrv := server.NewServer(tools.NewRegistry(logger, app.session), logger)

	if cfg.MCP.Transport != "http" {
		return mcpSrv.ServeStdio(ctx, os.Stdin, os.Stdout)
	}

	httpTransport := server.NewHTTPTransport(mcpSrv, server.HTTPTransportConfigFrom(cfg.MCP), healthChecker, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- httpTransport.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpTransport.Shutdown(shutdownCtx)
}

// startMonitoringServer serves Prometheus metrics and health endpoints.
func startMonitoringServer(addr string, hc *monitoring.HealthChecker, logger *slog.Logger) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", hc.HealthHandler())
	mux.HandleFunc("/live", hc.LivenessHandler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting monitoring server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("monitoring server error", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("failed to shut down monitoring server", "error", err)
		}
	}
}
