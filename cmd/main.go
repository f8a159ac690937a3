package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unknownchat/backend/internal/api/handler"
	"unknownchat/backend/internal/audit"
	"unknownchat/backend/internal/config"
	"unknownchat/backend/internal/engine"
	"unknownchat/backend/internal/monitor"
	"unknownchat/backend/internal/persist"
	"unknownchat/backend/internal/telegram"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return exitConfig, err
	}
	adminIDs, err := cfg.Admins()
	if err != nil {
		return exitConfig, err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	journal, err := audit.NewJournal(cfg.ChatLogsDir, log.With("component", "audit"))
	if err != nil {
		return exitConfig, err
	}

	eng := engine.New(log.With("component", "engine"), journal)

	gateway, err := persist.NewGateway(cfg.DataDir, cfg.SnapshotInterval, eng, log.With("component", "persist"))
	if err != nil {
		return exitConfig, err
	}
	if err := gateway.Load(); err != nil {
		return exitRuntime, err
	}

	bot, err := telegram.NewBotService(cfg.BotToken, eng, adminIDs, log.With("component", "telegram"))
	if err != nil {
		return exitRuntime, err
	}
	eng.SetNotifier(bot)

	heartbeat := monitor.NewHeartbeat(cfg.HeartbeatInterval, cfg.AllowedMissed, log.With("component", "monitor"))
	heartbeat.SetAlerter(bot)
	bot.SetBeater(heartbeat)

	h := handler.New(eng, journal, cfg.JWTSecret, cfg.AdminAPIKey, log.With("component", "api"))
	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        h.Router(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   0, // the stats websocket holds the connection open
		MaxHeaderBytes: 1 << 20,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 4)
	go func() { errCh <- bot.Run(ctx) }()
	go func() { errCh <- gateway.Run(ctx) }()
	go func() { errCh <- heartbeat.Run(ctx) }()
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("started", "http", cfg.HTTPAddr, "snapshot_interval", cfg.SnapshotInterval)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
	// The gateway takes its final snapshot when its context is cancelled;
	// give it a moment before the process exits.
	for i := 0; i < 2; i++ {
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return exitRuntime, runErr
	}
	log.Info("stopped")
	return exitOK, nil
}
