package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	logger := zap.NewNop()

	conn, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "repo.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = database.NewMigrator(conn, logger).Run(context.Background())
	require.NoError(t, err)

	return sqlite.NewDB(conn, logger)
}

func newTestTransaction(id, requester string) *entity.ExpenseTransaction {
	return &entity.ExpenseTransaction{
		ID:             id,
		RequesterID:    requester,
		OrganizationID: "grace",
		Amount:         decimal.RequireFromString("1250.50"),
		Category:       entity.CategoryGeneral,
		Description:    "Sound system repair",
		Status:         entity.TransactionStatusDraft,
		CreatedAt:      baseTime,
		UpdatedAt:      baseTime,
	}
}

func newTestFlow(id, txnID, requester, priority string, created time.Time) *entity.ApprovalFlow {
	return &entity.ApprovalFlow{
		ID:             id,
		TransactionID:  txnID,
		RequesterID:    requester,
		OrganizationID: "grace",
		Amount:         decimal.RequireFromString("1250.50"),
		Category:       entity.CategoryGeneral,
		Priority:       priority,
		TotalSteps:     2,
		CurrentStep:    1,
		Status:         entity.FlowStatusPending,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func newTestStep(id, flowID string, order int, approver string, created time.Time) *entity.ApprovalStep {
	return &entity.ApprovalStep{
		ID:             id,
		FlowID:         flowID,
		StepOrder:      order,
		ApproverID:     approver,
		ApproverRole:   "TREASURER",
		OrganizationID: "grace",
		IsRequired:     true,
		Status:         entity.StepStatusPending,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

// seedFlow stores a transaction, its flow and the given steps.
func seedFlow(t *testing.T, db *sqlite.DB, flow *entity.ApprovalFlow, steps ...*entity.ApprovalStep) {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	txn := newTestTransaction(flow.TransactionID, flow.RequesterID)
	require.NoError(t, NewTransactionRepository(db, logger).Create(ctx, txn))
	require.NoError(t, NewFlowRepository(db, logger).Create(ctx, flow))
	if len(steps) > 0 {
		require.NoError(t, NewStepRepository(db, logger).CreateBatch(ctx, steps))
	}
}
