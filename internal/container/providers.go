package container

import (
	"context"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/planner"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/infrastructure/directory"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/notification"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/worker"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/garyjia/expense-approval/pkg/utils"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the configured database and applies pending
// migrations before anything reads from it.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	applied, err := database.NewMigrator(conn, logger).Run(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Database ready",
		zap.String("driver", string(conn.Dialect())),
		zap.Int("migrations_applied", applied))

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn, logger),
	}, nil
}

// ProvideRepositories creates all repositories over the unit of work.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Flow:        repository.NewFlowRepository(db, logger),
		Step:        repository.NewStepRepository(db, logger),
		Transaction: repository.NewTransactionRepository(db, logger),
		Outbox:      repository.NewOutboxRepository(db, logger),
	}, nil
}

// ProvideDirectory returns the organization directory selected by cfg.
func ProvideDirectory(cfg *DirectoryConfig, db *sqlite.DB, logger *zap.Logger) (port.OrganizationDirectory, error) {
	switch cfg.Source {
	case DirectorySourceYAML:
		dir, err := directory.LoadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load directory: %w", err)
		}
		logger.Info("Loaded organization directory",
			zap.String("path", cfg.Path),
			zap.Int("organizations", dir.Size()))
		return dir, nil
	case DirectorySourceDatabase:
		return repository.NewDirectoryRepository(db, logger), nil
	default:
		return nil, fmt.Errorf("unknown directory source %q", cfg.Source)
	}
}

// ProvideNotifier builds the notification channels. The log channel is always
// present; Lark joins it when enabled.
func ProvideNotifier(cfg *LarkConfig, logger *zap.Logger) (port.Notifier, error) {
	channels := []port.Notifier{notification.NewLogNotifier(logger)}

	if cfg.Enabled {
		if cfg.AppID == "" || cfg.AppSecret == "" {
			return nil, fmt.Errorf("lark credentials are required when lark is enabled")
		}
		sdk := infraLark.NewSDKClient(infraLark.Config{
			AppID:          cfg.AppID,
			AppSecret:      cfg.AppSecret,
			BaseURL:        cfg.BaseURL,
			ReceiveIDType:  cfg.ReceiveIDType,
			RequestTimeout: cfg.APITimeout,
		}, logger)
		messenger := infraLark.NewMessenger(sdk, logger)
		channels = append(channels, infraLark.NewNotifier(messenger, cfg.ReceiveIDType, logger))
		logger.Info("Lark notifications enabled", zap.String("app_id", cfg.AppID))
	}

	return notification.NewFanOut(logger, channels...), nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg *WorkerConfig, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(utils.NewKeyValueLogger(logger)),
		dispatcher.WithAsyncTimeout(cfg.DeliveryTimeout),
	), nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Directory  port.OrganizationDirectory
	Notifier   port.Notifier
	Dispatcher dispatcher.Dispatcher
	Policy     planner.Policy
	WorkerCfg  *WorkerConfig
	Logger     *zap.Logger
}

// ProvideServices creates the application services and subscribes the
// notification service to every event type.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps.Repos == nil || deps.TxManager == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("repositories, transaction manager and dispatcher are required")
	}

	kvLogger := utils.NewKeyValueLogger(deps.Logger)

	if err := deps.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid approval policy: %w", err)
	}
	approvalPlanner := planner.New(deps.Directory, deps.Policy, kvLogger)

	approval := service.NewApprovalService(
		approvalPlanner,
		deps.Repos.Flow,
		deps.Repos.Step,
		deps.Repos.Transaction,
		deps.Repos.Outbox,
		deps.TxManager,
		deps.Dispatcher,
		kvLogger,
	)

	notifications := service.NewNotificationService(
		deps.Notifier,
		deps.Repos.Outbox,
		deps.Repos.Step,
		deps.TxManager,
		deps.Dispatcher,
		service.NotificationConfig{
			MaxAttempts:   deps.WorkerCfg.MaxAttempts,
			RetryBackoff:  deps.WorkerCfg.RetryBackoff,
			ReminderBatch: deps.WorkerCfg.ReminderBatch,
		},
		kvLogger,
	)

	for _, et := range event.AllTypes() {
		deps.Dispatcher.SubscribeNamed(et, "notification", notifications.HandleEvent)
	}

	return &ServiceBundle{
		Planner:      approvalPlanner,
		Approval:     approval,
		Notification: notifications,
	}, nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Repos         *RepositoryBundle
	Notifications service.NotificationService
	WorkerCfg     *WorkerConfig
	Logger        *zap.Logger
}

// ProvideWorkers creates the outbox and reminder workers. Workers are
// registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps.Notifications == nil {
		return nil, fmt.Errorf("notification service is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	outbox := worker.NewOutboxWorker(
		worker.OutboxWorkerConfig{
			PollInterval:    deps.WorkerCfg.OutboxPollInterval,
			BatchSize:       deps.WorkerCfg.OutboxBatchSize,
			GracePeriod:     deps.WorkerCfg.GracePeriod,
			DeliveryTimeout: deps.WorkerCfg.DeliveryTimeout,
		},
		deps.Repos.Outbox,
		deps.Notifications,
		deps.Logger,
	)
	reminder := worker.NewReminderWorker(
		deps.WorkerCfg.ReminderInterval,
		deps.Notifications,
		deps.Logger,
	)

	for _, w := range []worker.Worker{outbox, reminder} {
		if err := manager.Register(w); err != nil {
			return nil, err
		}
	}
	return manager, nil
}
