package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/slipstream/vidgrab/internal/api"
	"github.com/slipstream/vidgrab/internal/backend"
	"github.com/slipstream/vidgrab/internal/bridge"
	"github.com/slipstream/vidgrab/internal/config"
	"github.com/slipstream/vidgrab/internal/coordinator"
	"github.com/slipstream/vidgrab/internal/detector"
	"github.com/slipstream/vidgrab/internal/logger"
	"github.com/slipstream/vidgrab/internal/panel"
	"github.com/slipstream/vidgrab/internal/scheduler"
	"github.com/slipstream/vidgrab/internal/scheduler/tasks"
	"github.com/slipstream/vidgrab/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	backendURL := flag.String("backend", "", "Override backend.url")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
	}

	log := logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Path:            cfg.Logging.Path,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		MaxAgeDays:      cfg.Logging.MaxAgeDays,
		Compress:        cfg.Logging.Compress,
		EnableStreaming: true,
		BufferSize:      1000,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Str("backend", cfg.Backend.URL).
		Msg("starting vidgrab")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := websocket.NewHub(log.Logger)
	go hub.Run(ctx)

	// Enable log streaming via WebSocket now that hub is available
	log.SetBroadcastHub(hub)

	client := backend.New(backend.Config{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.Backend.Timeout,
	}, log.Logger)

	indicators := api.NewIndicatorState(hub)
	coord := coordinator.New(client, indicators, log.Logger)

	b := bridge.New(log.Logger)
	b.Register(bridge.Coordinator, coord)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	if err := tasks.RegisterBackendHealthTask(sched, coord, cfg.Coordinator.HealthCron, log.Logger); err != nil {
		log.Fatal().Err(err).Msg("failed to register backend health task")
	}

	shell := api.NewShell(api.ShellConfig{
		Detector: detector.Config{
			SettleDelay:     cfg.Detector.SettleDelay,
			NavigationDelay: cfg.Detector.NavigationDelay,
		},
		Panel: panel.Config{
			PollInterval: cfg.Panel.PollInterval,
			CloseDelay:   cfg.Panel.CloseDelay,
		},
	}, b, coord, indicators, hub, clockwork.NewRealClock(), log.Logger)

	server := api.NewServer(api.Options{
		Shell:     shell,
		Backend:   client,
		Hub:       hub,
		Scheduler: sched,
		Logs:      log,
		Logger:    log.Logger,
	})

	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	go func() {
		addr := cfg.Server.Address()
		log.Info().Str("address", addr).Msg("HTTP server listening")
		if err := server.Start(addr); err != nil {
			log.Error().Err(err).Msg("HTTP server error")
			stop()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}
	stop()

	log.Info().Msg("server stopped")
}
