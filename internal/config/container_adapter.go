package config

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/planner"
	"github.com/garyjia/expense-approval/internal/container"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Policy converts the approval section into a planner policy. Missing levels
// or categories fall back to the built-in matrix.
func (a ApprovalConfig) Policy() (planner.Policy, error) {
	defaults := planner.DefaultPolicy()
	policy := planner.Policy{
		Levels:     defaults.Levels,
		Categories: defaults.Categories,
		TimeoutHours: map[string]int{
			entity.PriorityNormal: a.TimeoutHours.Normal,
			entity.PriorityHigh:   a.TimeoutHours.High,
		},
	}

	if len(a.Levels) > 0 {
		policy.Levels = make([]planner.LevelRule, 0, len(a.Levels))
		for i, l := range a.Levels {
			rule := planner.LevelRule{
				OrgType:  strings.ToUpper(l.OrgType),
				Role:     l.Role,
				Parallel: l.Parallel,
			}
			if strings.TrimSpace(l.Limit) != "" {
				limit, err := decimal.NewFromString(strings.TrimSpace(l.Limit))
				if err != nil {
					return planner.Policy{}, fmt.Errorf("levels[%d].limit: %w", i, err)
				}
				rule.Limit = &limit
			}
			policy.Levels = append(policy.Levels, rule)
		}
	}

	if len(a.Categories) > 0 {
		policy.Categories = make([]planner.CategoryRule, 0, len(a.Categories))
		for i, c := range a.Categories {
			minAmount := decimal.Zero
			if strings.TrimSpace(c.MinAmount) != "" {
				v, err := decimal.NewFromString(strings.TrimSpace(c.MinAmount))
				if err != nil {
					return planner.Policy{}, fmt.Errorf("categories[%d].min_amount: %w", i, err)
				}
				minAmount = v
			}
			policy.Categories = append(policy.Categories, planner.CategoryRule{
				Category:  strings.ToUpper(c.Category),
				OrgType:   strings.ToUpper(c.OrgType),
				Role:      c.Role,
				MinAmount: minAmount,
				Parallel:  c.Parallel,
				Required:  c.Required,
			})
		}
	}

	if err := policy.Validate(); err != nil {
		return planner.Policy{}, err
	}
	return policy, nil
}

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() (*container.Config, error) {
	policy, err := c.Approval.Policy()
	if err != nil {
		return nil, fmt.Errorf("approval policy: %w", err)
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Lark: container.LarkConfig{
			Enabled:       c.Lark.Enabled,
			AppID:         c.Lark.AppID,
			AppSecret:     c.Lark.AppSecret,
			BaseURL:       c.Lark.BaseURL,
			ReceiveIDType: c.Lark.ReceiveIDType,
			APITimeout:    c.Lark.APITimeout,
		},
		Directory: container.DirectoryConfig{
			Source: c.Directory.Source,
			Path:   c.Directory.Path,
		},
		Approval: container.ApprovalConfig{
			Policy: policy,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Worker: container.WorkerConfig{
			OutboxPollInterval: c.Worker.OutboxPollInterval,
			OutboxBatchSize:    c.Worker.OutboxBatchSize,
			GracePeriod:        c.Worker.GracePeriod,
			DeliveryTimeout:    c.Worker.DeliveryTimeout,
			MaxAttempts:        c.Worker.MaxAttempts,
			RetryBackoff:       c.Worker.RetryBackoff,
			ReminderInterval:   c.Worker.ReminderInterval,
			ReminderBatch:      c.Worker.ReminderBatch,
		},
	}, nil
}
