package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/ykvlv/daily-prompt-bot/internal/domain"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	BotToken    string `envconfig:"BOT_TOKEN" required:"true"`
	DBPath      string `envconfig:"DB_PATH" default:"./data/prompts.db"`
	PromptsPath string `envconfig:"PROMPTS_PATH" default:"prompts.json"`
	TextsPath   string `envconfig:"TEXTS_PATH"` // optional override of assets/texts.yaml

	DispatchTime string `envconfig:"DISPATCH_TIME" default:"09:00"` // HH:MM in DispatchTZ
	DispatchTZ   string `envconfig:"DISPATCH_TZ" default:"Europe/Moscow"`

	ReminderScanEnabled  bool          `envconfig:"REMINDER_SCAN_ENABLED" default:"true"`
	ReminderScanInterval time.Duration `envconfig:"REMINDER_SCAN_INTERVAL" default:"30m"`
	ReminderScanFirst    time.Duration `envconfig:"REMINDER_SCAN_FIRST" default:"30s"`
	ReminderDelay        time.Duration `envconfig:"REMINDER_DELAY" default:"24h"`

	OpTimeout    time.Duration `envconfig:"OP_TIMEOUT" default:"10s"`   // per store call
	SendTimeout  time.Duration `envconfig:"SEND_TIMEOUT" default:"15s"` // telegram HTTP client
	PollTimeout  time.Duration `envconfig:"POLL_TIMEOUT" default:"10s"` // long poll, below SEND_TIMEOUT
	BatchWorkers int           `envconfig:"BATCH_WORKERS" default:"4"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"` // debug|info|warn|error
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`
}

// Load reads an optional .env file and then environment variables into Config.
func Load() (Config, error) {
	// A missing .env is fine; real deployments pass variables directly.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot check on its own.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return errors.New("BOT_TOKEN is empty")
	}
	if _, err := domain.ValidateTZ(c.DispatchTZ); err != nil {
		return fmt.Errorf("DISPATCH_TZ: %w", err)
	}
	if _, err := domain.ParseClock(c.DispatchTime); err != nil {
		return fmt.Errorf("DISPATCH_TIME: %w", err)
	}
	if c.ReminderScanEnabled && c.ReminderScanInterval <= 0 {
		return errors.New("REMINDER_SCAN_INTERVAL must be positive")
	}
	if c.ReminderDelay <= 0 {
		return errors.New("REMINDER_DELAY must be positive")
	}
	if c.OpTimeout <= 0 || c.SendTimeout <= 0 {
		return errors.New("OP_TIMEOUT and SEND_TIMEOUT must be positive")
	}
	if c.PollTimeout < time.Second || c.PollTimeout >= c.SendTimeout {
		return errors.New("POLL_TIMEOUT must be at least 1s and below SEND_TIMEOUT")
	}
	if c.BatchWorkers < 1 {
		return errors.New("BATCH_WORKERS must be at least 1")
	}
	return nil
}

// Location returns the dispatch timezone. Validate must have passed.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DispatchTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
