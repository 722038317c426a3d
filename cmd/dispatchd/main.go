// Package main implements the entry point for dispatchd, the technician
// dispatch realtime backend. It wires the realtime connection pool, session
// registry, resource tracker, work order registry and notification pipeline
// together and exposes health and metrics over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/christianmcgivern/tech-app/api"
	"github.com/christianmcgivern/tech-app/config"
	"github.com/christianmcgivern/tech-app/health"
	"github.com/christianmcgivern/tech-app/metric"
	"github.com/christianmcgivern/tech-app/natsclient"
	"github.com/christianmcgivern/tech-app/notify"
	"github.com/christianmcgivern/tech-app/realtime"
	"github.com/christianmcgivern/tech-app/resource"
	"github.com/christianmcgivern/tech-app/session"
	signalhub "github.com/christianmcgivern/tech-app/signal"
	"github.com/christianmcgivern/tech-app/workorder"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "dispatchd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags override the config file for logging.
	logLevel := cfg.Logging.Level
	if cliCfg.LogLevel != "" {
		logLevel = cliCfg.LogLevel
	}
	logFormat := cfg.Logging.Format
	if cliCfg.LogFormat != "" {
		logFormat = cliCfg.LogFormat
	}
	logger := setupLogger(logLevel, logFormat)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	slog.Info("starting dispatchd",
		"version", Version,
		"config_path", cliCfg.ConfigPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}

	slog.Info("dispatchd started",
		"signal_addr", cfg.Signal.Addr,
		"http_addr", cfg.HTTP.Addr,
		"nats_enabled", cfg.NATS.Enabled)

	<-ctx.Done()
	slog.Info("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
	defer shutdownCancel()

	app.shutdown(shutdownCtx)
	slog.Info("dispatchd shutdown complete")
	return nil
}

// application holds the wired components so shutdown can walk them in
// reverse order.
type application struct {
	httpServer *http.Server
	hub        *signalhub.Hub
	natsClient *natsclient.Client
	sessions   *session.Registry
	pool       *realtime.Pool
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	registry := metric.NewRegistry()
	metrics := registry.Metrics

	tracker := resource.NewTracker(resource.Config{
		CleanupThreshold: cfg.Resource.CleanupThreshold,
		MonitorInterval:  cfg.Resource.MonitorInterval.Std(),
		IdleTimeout:      cfg.Resource.IdleTimeout.Std(),
	},
		resource.WithMetrics(metrics),
		resource.WithLogger(logger.With("component", "resource")),
	)
	go tracker.Run(ctx)

	rtCfg := realtimeConfig(cfg)
	pool := realtime.NewPool(cfg.Pool.MaxSize, cfg.Pool.TTL.Std(),
		realtime.WithPoolMetrics(metrics),
		realtime.WithPoolLogger(logger.With("component", "pool")),
		realtime.WithConnOptions(
			realtime.WithTracker(tracker),
			realtime.WithConnLogger(logger.With("component", "realtime")),
		),
	)

	sessionOpts := []session.RegistryOption{
		session.WithTracker(tracker),
		session.WithMetrics(metrics),
		session.WithLogger(logger.With("component", "session")),
	}
	if cfg.Session.UsePool {
		sessionOpts = append(sessionOpts, session.WithPool(pool))
	}
	sessions := session.NewRegistry(session.RegistryConfig{
		MaxSessions:   cfg.Session.MaxSessions,
		TTL:           cfg.Session.TTL.Std(),
		SweepInterval: cfg.Session.SweepInterval.Std(),
	}, sessionOpts...)
	go sessions.Run(ctx)

	orders := workorder.NewRegistry(
		workorder.WithMetrics(metrics),
		workorder.WithLogger(logger.With("component", "workorder")),
	)

	hub := signalhub.NewHub(signalhub.Config{
		Addr:         cfg.Signal.Addr,
		Path:         cfg.Signal.Path,
		WriteTimeout: 5 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
	},
		signalhub.WithLogger(logger.With("component", "signal")),
		signalhub.WithRegistry(registry),
	)
	if err := hub.Start(ctx); err != nil {
		return nil, fmt.Errorf("start signal hub: %w", err)
	}

	notifySvc := notify.NewService(
		notify.WithServiceLogger(logger.With("component", "notify")),
		notify.WithServiceMetrics(metrics),
	)
	notifySvc.AttachChannel(notify.NewAppChannel(hub,
		notify.WithAppLogger(logger.With("component", "notify")),
		notify.WithAppMetrics(metrics),
	))

	var natsClient *natsclient.Client
	if cfg.NATS.Enabled {
		nc, err := natsclient.NewClient(cfg.NATS.URL,
			natsclient.WithName(appName),
			natsclient.WithLogger(logger.With("component", "nats")),
		)
		if err != nil {
			return nil, fmt.Errorf("create NATS client: %w", err)
		}
		if err := nc.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		notifySvc.AttachChannel(notify.NewNATSChannel(nc,
			notify.WithNATSLogger(logger.With("component", "notify")),
		))
		natsClient = nc
	}
	go notifySvc.Run(ctx)

	manager := notify.NewManager(notifySvc,
		notify.WithManagerLogger(logger.With("component", "notify")),
	)

	apiServer := api.NewServer(sessions, orders, manager, notifySvc, rtCfg,
		api.WithLogger(logger.With("component", "api")),
	)

	httpServer := startHTTPServer(cfg.HTTP.Addr, apiServer, registry, []health.Reporter{
		tracker, pool, sessions, notifySvc, hub,
	}, logger)

	return &application{
		httpServer: httpServer,
		hub:        hub,
		natsClient: natsClient,
		sessions:   sessions,
		pool:       pool,
	}, nil
}

// realtimeConfig maps the file configuration onto the realtime client
// configuration.
func realtimeConfig(cfg config.Config) realtime.Config {
	return realtime.Config{
		URL:          cfg.Realtime.URL,
		APIKey:       cfg.Realtime.APIKey,
		ModelVersion: cfg.Realtime.ModelVersion,
		Voice:        cfg.Realtime.Voice,
		Modalities:   cfg.Realtime.Modalities,
		Instructions: cfg.Realtime.Instructions,
		MaxRetries:   cfg.Realtime.MaxRetries,
		RetryDelay:   cfg.Realtime.RetryDelay.Std(),
		Audio: realtime.AudioSettings{
			InputFormat:  cfg.Realtime.Audio.InputFormat,
			OutputFormat: cfg.Realtime.Audio.OutputFormat,
			SampleRate:   cfg.Realtime.Audio.SampleRate,
			Channels:     cfg.Realtime.Audio.Channels,
			MaxChunkSize: cfg.Realtime.Audio.MaxChunkSize,
		},
		VAD: realtime.VADSettings{
			Enabled:           cfg.Realtime.VAD.Enabled,
			Threshold:         cfg.Realtime.VAD.Threshold,
			PrefixPaddingMs:   cfg.Realtime.VAD.PrefixPaddingMs,
			SilenceDurationMs: cfg.Realtime.VAD.SilenceDurationMs,
		},
	}
}

// startHTTPServer serves the dispatch API plus /metrics and /healthz.
func startHTTPServer(addr string, apiServer *api.Server, registry *metric.Registry, reporters []health.Reporter, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(
		registry.PrometheusRegistry(),
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := health.Healthy(appName, "running")
		for _, r := range reporters {
			status = status.WithSubStatus(r.Health())
		}

		w.Header().Set("Content-Type", "application/json")
		if !status.IsHealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()
	return server
}

// shutdown stops components in reverse dependency order: stop accepting
// traffic, drain the session registry, then close the pool and broker.
func (a *application) shutdown(ctx context.Context) {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		slog.Warn("http server shutdown error", "error", err)
	}

	a.sessions.CleanupAll()
	a.pool.Close()

	if err := a.hub.Stop(ctx); err != nil {
		slog.Warn("signal hub shutdown error", "error", err)
	}

	if a.natsClient != nil {
		if err := a.natsClient.Close(ctx); err != nil {
			slog.Warn("NATS close error", "error", err)
		}
	}
}
