package config

import (
	"github.com/phrazzld/drudge/internal/domain"
)

// Config holds all application configuration. It is constructed once at
// process start by Load and passed explicitly into each component; no
// package-level state.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	State     StateConfig     `mapstructure:"state"`
	Status    StatusConfig    `mapstructure:"status"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// StoreConfig selects and configures the record-store backend.
type StoreConfig struct {
	// Driver is either "notion" or "postgres".
	Driver   string         `mapstructure:"driver"   validate:"required,oneof=notion postgres"`
	Notion   NotionConfig   `mapstructure:"notion"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// NotionConfig holds credentials for the Notion-compatible record API.
type NotionConfig struct {
	APIKey     string `mapstructure:"api_key"`
	DatabaseID string `mapstructure:"database_id"`
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string `mapstructure:"base_url"`
}

// PostgresConfig holds settings for the self-hosted PostgreSQL backend.
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

// SchedulerConfig configures the recurrence scheduler.
type SchedulerConfig struct {
	// Projects are the scoping labels the rules are applied to.
	// Required by the scheduler binary, which checks for emptiness
	// itself; the worker and status panel ignore it.
	Projects []string `mapstructure:"projects"`

	// Rules pair task types with creation frequencies.
	Rules []domain.RecurrenceRule `mapstructure:"rules"`

	// IntervalSeconds is how often the external timer invokes the
	// scheduler. Informational: used by the status panel to estimate
	// the next check.
	IntervalSeconds int `mapstructure:"interval_seconds" validate:"omitempty,gt=0"`
}

// WorkerConfig configures the task dispatcher.
type WorkerConfig struct {
	// MaxTasks caps how many queued tasks one run claims.
	MaxTasks int `mapstructure:"max_tasks" validate:"required,gt=0"`

	// HandlersDir is the working directory handler processes run in
	// (the automation repository root).
	HandlersDir string `mapstructure:"handlers_dir" validate:"required"`

	// IntervalSeconds mirrors SchedulerConfig.IntervalSeconds for the
	// worker's external timer.
	IntervalSeconds int `mapstructure:"interval_seconds" validate:"omitempty,gt=0"`
}

// NotifyConfig configures the outbound alert channel. Both fields empty
// disables alerting entirely.
type NotifyConfig struct {
	DiscordToken     string `mapstructure:"discord_token"`
	DiscordChannelID string `mapstructure:"discord_channel_id"`
}

// StateConfig locates the local JSON state documents and append log.
type StateConfig struct {
	Dir       string `mapstructure:"dir" validate:"required"`
	LogDir    string `mapstructure:"log_dir"`
	UsageFile string `mapstructure:"usage_file"`
}

// StatusConfig configures the read-only status panel server.
type StatusConfig struct {
	Port int `mapstructure:"port" validate:"omitempty,gt=0,lt=65536"`
}
