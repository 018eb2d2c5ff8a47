// ====================================
// File: cmd/bot/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-copybot/internal/bot"
	"github.com/rovshanmuradov/solana-copybot/internal/config"
	"github.com/rovshanmuradov/solana-copybot/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("COPYBOT_CONFIG"), "path to config file (optional)")
	flag.Parse()

	// .env необязателен
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.FromAppConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Starting copy trading bot", zap.String("target", cfg.TargetWallet))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := bot.NewRunner(cfg, log)
	if err := runner.Initialize(ctx); err != nil {
		log.Error("Failed to initialize bot", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}

	runErr := runner.Run(ctx)
	if runErr != nil {
		log.Error("Bot execution error", zap.Error(runErr))
	}

	if err := runner.Shutdown(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
