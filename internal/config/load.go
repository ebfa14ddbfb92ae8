package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration errors that abort the process before any work happens.
var (
	ErrMissingNotionCredentials = errors.New(
		"store.driver is notion but notion.api_key or notion.database_id is missing")
	ErrMissingPostgresURL = errors.New(
		"store.driver is postgres but postgres.url is missing")
)

// Load reads configuration from an optional config file, `.env` files,
// and DRUDGE_-prefixed environment variables, with the environment
// taking precedence. Returns a validated Config or an error; callers
// treat any error here as fatal.
func Load() (*Config, error) {
	// .env files are a convenience for cron-launched processes that
	// inherit a minimal environment. Absent files are not an error.
	_ = godotenv.Load(".env", filepath.Join("config", ".env"))

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("drudge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("DRUDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", "notion")
	// Empty defaults register the keys so AutomaticEnv picks them up
	// without an explicit BindEnv per key.
	v.SetDefault("store.notion.api_key", "")
	v.SetDefault("store.notion.database_id", "")
	v.SetDefault("store.notion.base_url", "")
	v.SetDefault("store.postgres.url", "")
	v.SetDefault("notify.discord_token", "")
	v.SetDefault("notify.discord_channel_id", "")
	v.SetDefault("scheduler.interval_seconds", 3600)
	v.SetDefault("worker.max_tasks", 1)
	v.SetDefault("worker.interval_seconds", 900)
	v.SetDefault("worker.handlers_dir", ".")
	v.SetDefault("state.dir", "runner/state")
	v.SetDefault("state.log_dir", "runner/logs")
	v.SetDefault("state.usage_file", "runner/state/usage.json")
	v.SetDefault("status.port", 8787)
}

// validate runs struct validation. Driver-specific credential checks
// live in ValidateStore, which only the binaries that actually open the
// store call; the status panel runs without store credentials.
func validate(cfg *Config) error {
	vd := validator.New()
	if err := vd.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ValidateStore checks that the selected store driver has the
// credentials it needs. Callers treat an error as fatal before any
// work happens.
func (c *StoreConfig) ValidateStore() error {
	switch c.Driver {
	case "notion":
		if c.Notion.APIKey == "" || c.Notion.DatabaseID == "" {
			return ErrMissingNotionCredentials
		}
	case "postgres":
		if c.Postgres.URL == "" {
			return ErrMissingPostgresURL
		}
	}
	return nil
}
