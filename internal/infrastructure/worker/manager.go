package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Worker is a background loop owned by the manager. Start must return once
// the loop is running; Stop blocks until it has exited.
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
	Status() Status
}

// Status is a point-in-time view of a worker, reported by the health endpoint
type Status struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// WorkerManager runs the outbox and reminder loops as one unit: they start
// together, and a loop that cannot start takes the others down with it.
type WorkerManager struct {
	logger *zap.Logger

	mu      sync.RWMutex
	workers []Worker
	byName  map[string]Worker
	cancel  context.CancelFunc
}

// NewWorkerManager creates an empty manager.
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{
		logger: logger,
		byName: make(map[string]Worker),
	}
}

// Register adds w to the set started by StartAll. Names identify workers in
// health output, so they must be unique, and the set is fixed once running.
func (m *WorkerManager) Register(w Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return fmt.Errorf("cannot register %s: workers already running", w.Name())
	}
	if _, dup := m.byName[w.Name()]; dup {
		return fmt.Errorf("worker %s already registered", w.Name())
	}

	m.workers = append(m.workers, w)
	m.byName[w.Name()] = w
	m.logger.Debug("Worker registered", zap.String("worker_name", w.Name()))
	return nil
}

// StartAll starts every worker under a context derived from ctx. If one
// fails, the ones already started are stopped and the error is returned.
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return fmt.Errorf("workers already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	for i, w := range m.workers {
		if err := w.Start(runCtx); err != nil {
			cancel()
			stopErr := stopInReverse(m.workers[:i], m.logger)
			return errors.Join(fmt.Errorf("start %s: %w", w.Name(), err), stopErr)
		}
	}

	m.cancel = cancel
	m.logger.Info("Workers started", zap.Strings("workers", m.namesLocked()))
	return nil
}

// StopAll cancels the shared context and waits for every worker, last
// registered first. Calling it on a stopped manager is a no-op.
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return nil
	}
	m.cancel()
	m.cancel = nil

	if err := stopInReverse(m.workers, m.logger); err != nil {
		return err
	}
	m.logger.Info("Workers stopped", zap.Int("count", len(m.workers)))
	return nil
}

func stopInReverse(workers []Worker, logger *zap.Logger) error {
	var errs []error
	for i := len(workers) - 1; i >= 0; i-- {
		w := workers[i]
		if err := w.Stop(); err != nil {
			logger.Error("Failed to stop worker", zap.String("worker_name", w.Name()), zap.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", w.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *WorkerManager) namesLocked() []string {
	names := make([]string, len(m.workers))
	for i, w := range m.workers {
		names[i] = w.Name()
	}
	return names
}

// GetWorkerCount returns the number of registered workers
func (m *WorkerManager) GetWorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// IsRunning reports whether StartAll succeeded and StopAll has not run since.
func (m *WorkerManager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cancel != nil
}

// Statuses returns the status of every registered worker in registration order.
func (m *WorkerManager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]Status, 0, len(m.workers))
	for _, w := range m.workers {
		statuses = append(statuses, w.Status())
	}
	return statuses
}
