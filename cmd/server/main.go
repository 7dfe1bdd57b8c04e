package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"

	"jobboard-agent/internal/app"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := app.LoadConfig(os.Getenv)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		slog.Error("failed to build app", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	server := fiber.New(fiber.Config{AppName: "jobboard-agent"})
	a.Handler.Register(server)

	errCh := make(chan error, 1)
	go func() {
		addr := net.JoinHostPort("", cfg.HTTPPort)
		slog.Info("listening", "addr", addr)
		errCh <- server.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Error("server stopped", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
			slog.Error("shutdown failed", "err", err)
		}
	}
}
