// Command server runs the MSFEA academic advisor HTTP API and chat page.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohamadbazzy/Agentic-Rag/internal/app"
	"github.com/mohamadbazzy/Agentic-Rag/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("Advisor server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(logger *slog.Logger) error {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting advisor", "port", cfg.Port, "dev", cfg.IsDevelopment(), "llm_provider", cfg.LLM.Provider)
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize advisor: %w", err)
	}
	defer a.Close()
	slog.Info("Advisor initialized", "agents", len(a.Registry.Agents()), "catalog", cfg.Catalog.Path)

	srv, err := app.NewServer(a, logger)
	if err != nil {
		return fmt.Errorf("initialize http server: %w", err)
	}
	return srv.Run(ctx)
}
