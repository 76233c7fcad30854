package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/ykvlv/daily-prompt-bot/internal/app"
	"github.com/ykvlv/daily-prompt-bot/internal/catalog"
	"github.com/ykvlv/daily-prompt-bot/internal/config"
	"github.com/ykvlv/daily-prompt-bot/internal/logger"
	"github.com/ykvlv/daily-prompt-bot/internal/texts"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; exit immediately.
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	// The bot must never run without prompts.
	cat, err := catalog.Load(cfg.PromptsPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("catalog error: " + err.Error() + "\n")
		os.Exit(2)
	}
	tx, err := texts.Load(cfg.TextsPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("texts error: " + err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(2)
	}
	// Ensure logger flush; ignore sync error (common on some platforms).
	defer func() { _ = log.Sync() }()

	application, err := app.New(cfg, log, cat, tx)
	if err != nil {
		log.Fatal("app init failed", zap.Error(err))
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatal("app run failed", zap.Error(err))
	}
}
