package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Lark      LarkConfig      `mapstructure:"lark"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	AppID         string        `mapstructure:"app_id"`
	AppSecret     string        `mapstructure:"app_secret"`
	BaseURL       string        `mapstructure:"base_url"`
	ReceiveIDType string        `mapstructure:"receive_id_type"`
	APITimeout    time.Duration `mapstructure:"api_timeout"`
}

// DirectoryConfig selects where organizations and roles come from
type DirectoryConfig struct {
	Source string `mapstructure:"source"`
	Path   string `mapstructure:"path"`
}

// ApprovalConfig holds the planning policy. Amounts are decimal strings.
type ApprovalConfig struct {
	TimeoutHours TimeoutHoursConfig   `mapstructure:"timeout_hours"`
	Levels       []LevelRuleConfig    `mapstructure:"levels"`
	Categories   []CategoryRuleConfig `mapstructure:"categories"`
}

// TimeoutHoursConfig is the step timeout per priority; zero disables it
type TimeoutHoursConfig struct {
	Normal int `mapstructure:"normal"`
	High   int `mapstructure:"high"`
}

// LevelRuleConfig is one level of the approval matrix
type LevelRuleConfig struct {
	OrgType string `mapstructure:"org_type"`
	Role    string `mapstructure:"role"`
	// Limit is empty for a level that covers any amount
	Limit    string `mapstructure:"limit"`
	Parallel bool   `mapstructure:"parallel"`
}

// CategoryRuleConfig adds an approver for a spending category
type CategoryRuleConfig struct {
	Category  string `mapstructure:"category"`
	OrgType   string `mapstructure:"org_type"`
	Role      string `mapstructure:"role"`
	MinAmount string `mapstructure:"min_amount"`
	Parallel  bool   `mapstructure:"parallel"`
	Required  bool   `mapstructure:"required"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxBatchSize    int           `mapstructure:"outbox_batch_size"`
	GracePeriod        time.Duration `mapstructure:"grace_period"`
	DeliveryTimeout    time.Duration `mapstructure:"delivery_timeout"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`
	ReminderInterval   time.Duration `mapstructure:"reminder_interval"`
	ReminderBatch      int           `mapstructure:"reminder_batch"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables. An empty
// configPath uses defaults and the environment only. A .env file in the
// working directory is read first when present.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports the variables of path without overriding ones already
// set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Database defaults
	viper.SetDefault("database.driver", "sqlite3")
	viper.SetDefault("database.path", "data/expense_approval.db")
	viper.SetDefault("database.max_open_conns", 10)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Lark defaults
	viper.SetDefault("lark.enabled", false)
	viper.SetDefault("lark.receive_id_type", "user_id")
	viper.SetDefault("lark.api_timeout", 30*time.Second)

	// Directory defaults
	viper.SetDefault("directory.source", "sqlite")

	// Approval defaults; levels and categories fall back to the built-in matrix
	viper.SetDefault("approval.timeout_hours.normal", 72)
	viper.SetDefault("approval.timeout_hours.high", 24)

	// Worker defaults
	viper.SetDefault("worker.outbox_poll_interval", 10*time.Second)
	viper.SetDefault("worker.outbox_batch_size", 50)
	viper.SetDefault("worker.grace_period", 30*time.Second)
	viper.SetDefault("worker.delivery_timeout", 15*time.Second)
	viper.SetDefault("worker.max_attempts", 5)
	viper.SetDefault("worker.retry_backoff", time.Minute)
	viper.SetDefault("worker.reminder_interval", 5*time.Minute)
	viper.SetDefault("worker.reminder_batch", 100)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("lark.app_id", "LARK_APP_ID")
	viper.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	viper.BindEnv("database.dsn", "DATABASE_DSN")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case "pgx":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	switch c.Directory.Source {
	case "sqlite":
	case "yaml":
		if c.Directory.Path == "" {
			return fmt.Errorf("directory.path is required for the yaml source")
		}
	default:
		return fmt.Errorf("unknown directory.source %q", c.Directory.Source)
	}

	// Validate Lark credentials
	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	if c.Worker.OutboxPollInterval <= 0 {
		return fmt.Errorf("worker.outbox_poll_interval must be positive")
	}
	if c.Worker.ReminderInterval <= 0 {
		return fmt.Errorf("worker.reminder_interval must be positive")
	}
	if c.Worker.RetryBackoff <= 0 {
		return fmt.Errorf("worker.retry_backoff must be positive")
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker.max_attempts must be positive")
	}

	if _, err := c.Approval.Policy(); err != nil {
		return fmt.Errorf("approval: %w", err)
	}

	return nil
}
