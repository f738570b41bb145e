package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/apresai/dubcast/internal/mcpserver"
	"github.com/apresai/dubcast/internal/observability"
)

func main() {
	log := observability.InitLogger()
	slog.SetDefault(log)
	log.Info("dubcast MCP server starting")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := mcpserver.DefaultConfig()

	srv, err := mcpserver.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")
		os.Exit(0)
	}()

	if err := srv.Start(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
