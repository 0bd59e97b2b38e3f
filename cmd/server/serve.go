package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/container"
	httpapi "github.com/garyjia/expense-approval/internal/interfaces/http"
	"github.com/garyjia/expense-approval/pkg/utils"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background workers",
		RunE:  runServe,
	}
	cmd.Flags().Bool("no-workers", false, "serve the API without the outbox and reminder workers")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	containerCfg, err := appConfig.ToContainerConfig()
	if err != nil {
		return err
	}
	if noWorkers, _ := cmd.Flags().GetBool("no-workers"); noWorkers {
		containerCfg.Worker.Disabled = true
	}

	logger.Info("Starting expense approval service",
		zap.String("version", version),
		zap.String("driver", containerCfg.Database.Driver),
		zap.Int("port", containerCfg.Server.Port))

	c, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown failed", zap.Error(err))
		}
	}()

	server := httpapi.NewServer(
		httpapi.ServerConfig{
			Host:            containerCfg.Server.Host,
			Port:            containerCfg.Server.Port,
			ReadTimeout:     containerCfg.Server.ReadTimeout,
			WriteTimeout:    containerCfg.Server.WriteTimeout,
			ShutdownTimeout: containerCfg.Server.ShutdownTimeout,
		},
		c.Services().Approval,
		c.HealthCheck,
		utils.NewKeyValueLogger(logger),
	)

	// Blocks until the signal handler cancels ctx
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Server exited successfully")
	return nil
}
