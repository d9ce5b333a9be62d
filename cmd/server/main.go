package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := server.LoadConfig()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	server.SetConfig(cfg)

	directory, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		slog.Error("open directory store", "path", cfg.DatabasePath, "err", err)
		os.Exit(1)
	}
	defer directory.Close()

	hub := server.NewHub(directory)
	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "err", err)
			os.Exit(1)
		}
	}

	_ = server.ShutdownServer(httpServer, shutdownTimeout)
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		slog.Warn("hub shutdown incomplete", "err", err)
	}
}
