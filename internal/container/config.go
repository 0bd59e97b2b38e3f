// Package container provides dependency injection and lifecycle management
// for the expense approval service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/expense-approval/internal/application/planner"
	"github.com/garyjia/expense-approval/pkg/database"
)

// Directory sources
const (
	// DirectorySourceDatabase reads organizations and role assignments from
	// the configured database.
	DirectorySourceDatabase = "sqlite"
	// DirectorySourceYAML reads a static directory file at start.
	DirectorySourceYAML = "yaml"
)

// Config holds all configuration for the Container.
type Config struct {
	Database  DatabaseConfig
	Lark      LarkConfig
	Directory DirectoryConfig
	Approval  ApprovalConfig
	Server    ServerConfig
	Worker    WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is "sqlite3" or "pgx"
	Driver string

	// Path to SQLite database file
	Path string

	// DSN for Postgres
	DSN string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// Enabled turns on the Lark IM notification channel
	Enabled bool

	AppID     string
	AppSecret string

	// BaseURL overrides the open platform endpoint
	BaseURL string

	// ReceiveIDType is how user IDs are addressed (user_id, open_id, email)
	ReceiveIDType string

	// APITimeout is the timeout for API calls
	APITimeout time.Duration
}

// DirectoryConfig selects the organization directory.
type DirectoryConfig struct {
	Source string
	// Path is the YAML file, used when Source is yaml
	Path string
}

// ApprovalConfig holds the planning policy.
type ApprovalConfig struct {
	Policy planner.Policy
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// Outbox worker settings
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	GracePeriod        time.Duration
	DeliveryTimeout    time.Duration

	// Delivery retry settings
	MaxAttempts  int
	RetryBackoff time.Duration

	// Reminder worker settings
	ReminderInterval time.Duration
	ReminderBatch    int

	// Disabled skips starting the background workers
	Disabled bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          string(database.DialectSQLite),
			Path:            "data/expense_approval.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Lark: LarkConfig{
			ReceiveIDType: "user_id",
			APITimeout:    30 * time.Second,
		},
		Directory: DirectoryConfig{
			Source: DirectorySourceDatabase,
		},
		Approval: ApprovalConfig{
			Policy: planner.DefaultPolicy(),
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Worker: WorkerConfig{
			OutboxPollInterval: 10 * time.Second,
			OutboxBatchSize:    50,
			GracePeriod:        30 * time.Second,
			DeliveryTimeout:    15 * time.Second,
			MaxAttempts:        5,
			RetryBackoff:       time.Minute,
			ReminderInterval:   5 * time.Minute,
			ReminderBatch:      100,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch database.Dialect(c.Database.Driver) {
	case database.DialectSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite3")
		}
	case database.DialectPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for pgx")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Directory.Source {
	case DirectorySourceDatabase:
	case DirectorySourceYAML:
		if c.Directory.Path == "" {
			return fmt.Errorf("directory.path is required for the yaml source")
		}
	default:
		return fmt.Errorf("unknown directory source %q", c.Directory.Source)
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	if err := c.Approval.Policy.Validate(); err != nil {
		return fmt.Errorf("approval policy: %w", err)
	}

	if !c.Worker.Disabled {
		if c.Worker.OutboxPollInterval <= 0 {
			return fmt.Errorf("worker.outbox_poll_interval must be positive")
		}
		if c.Worker.ReminderInterval <= 0 {
			return fmt.Errorf("worker.reminder_interval must be positive")
		}
	}

	return nil
}
