// Package config provides configuration loading for the application.
//
// Configuration is an explicit object handed to the engine and enricher at
// construction; nothing in the core reads ambient globals.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/recountlabs/recount/internal/common"
)

// Config is the full application configuration.
type Config struct {
	Database    Database
	Logging     Logging
	AI          AI
	Idempotency Idempotency
	Reconcile   Reconcile
}

// Database configures the SQLite store.
type Database struct {
	Path string
}

// Logging configures the structured logger.
type Logging struct {
	Level  string
	Format string
}

// AI configures the optional explanation enricher.
type AI struct {
	APIKey       string
	Model        string
	Temperature  float64
	MaxTokens    int
	MaxAttempts  int
	InitialDelay time.Duration
	Timeout      time.Duration
	Enabled      bool
}

// Idempotency configures the request guard.
type Idempotency struct {
	TTL time.Duration
}

// Reconcile holds the candidate-ranking defaults.
type Reconcile struct {
	MinScore decimal.Decimal
	Top      int
}

// SetDefaults registers every configuration default with viper.
func SetDefaults() {
	viper.SetDefault("database.path", "~/.local/share/recount/recount.db")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
	viper.SetDefault("ai.enabled", false)
	viper.SetDefault("ai.model", "gemini-1.5-flash")
	viper.SetDefault("ai.temperature", 0.3)
	viper.SetDefault("ai.max_tokens", 300)
	viper.SetDefault("ai.max_attempts", 3)
	viper.SetDefault("ai.initial_delay", "1s")
	viper.SetDefault("ai.timeout", "10s")
	viper.SetDefault("idempotency.ttl", "48h")
	viper.SetDefault("reconcile.top", 5)
	viper.SetDefault("reconcile.min_score", 60)
}

// Load materializes the configuration from viper.
func Load() (*Config, error) {
	minScore := decimal.NewFromFloat(viper.GetFloat64("reconcile.min_score"))
	if minScore.IsNegative() || minScore.GreaterThan(decimal.NewFromInt(100)) {
		return nil, common.ErrInvalidConfig
	}

	cfg := &Config{
		Database: Database{
			Path: ExpandPath(viper.GetString("database.path")),
		},
		Logging: Logging{
			Level:  viper.GetString("logging.level"),
			Format: viper.GetString("logging.format"),
		},
		AI: AI{
			Enabled:      viper.GetBool("ai.enabled"),
			APIKey:       viper.GetString("ai.api_key"),
			Model:        viper.GetString("ai.model"),
			Temperature:  viper.GetFloat64("ai.temperature"),
			MaxTokens:    viper.GetInt("ai.max_tokens"),
			MaxAttempts:  viper.GetInt("ai.max_attempts"),
			InitialDelay: viper.GetDuration("ai.initial_delay"),
			Timeout:      viper.GetDuration("ai.timeout"),
		},
		Idempotency: Idempotency{
			TTL: viper.GetDuration("idempotency.ttl"),
		},
		Reconcile: Reconcile{
			Top:      viper.GetInt("reconcile.top"),
			MinScore: minScore,
		},
	}

	if cfg.AI.Enabled && cfg.AI.APIKey == "" {
		return nil, common.ErrMissingConfig
	}

	return cfg, nil
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
