package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// tickFunc runs one polling round and reports how many items succeeded and
// failed.
type tickFunc func(ctx context.Context) (processed, failed int, err error)

// poller runs a tickFunc on a fixed interval until stopped
type poller struct {
	name     string
	interval time.Duration
	tick     tickFunc
	logger   *zap.Logger

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	processed int
	failed    int
	lastRun   time.Time
	lastError error
}

func newPoller(name string, interval time.Duration, tick tickFunc, logger *zap.Logger) *poller {
	return &poller{
		name:     name,
		interval: interval,
		tick:     tick,
		logger:   logger,
	}
}

// Start begins the polling loop
func (p *poller) Start(ctx context.Context) error {
	if p.interval <= 0 {
		return fmt.Errorf("%s: poll interval must be positive", p.name)
	}

	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return fmt.Errorf("%s already running", p.name)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.isRunning = true
	p.mu.Unlock()

	p.logger.Info("Worker polling started",
		zap.String("worker_name", p.name),
		zap.Duration("poll_interval", p.interval))

	go p.pollLoop(loopCtx, p.done)
	return nil
}

// Stop cancels the loop and waits for the current round to finish
func (p *poller) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done

	status := p.Status()
	p.logger.Info("Worker polling stopped",
		zap.String("worker_name", p.name),
		zap.Int("processed_count", status.Processed),
		zap.Int("failed_count", status.Failed))
	return nil
}

// Name returns the worker name for identification
func (p *poller) Name() string {
	return p.name
}

// Status reports counters of the worker
func (p *poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Status{
		Name:      p.name,
		Running:   p.isRunning,
		Processed: p.processed,
		Failed:    p.failed,
		LastRun:   p.lastRun,
	}
	if p.lastError != nil {
		s.LastError = p.lastError.Error()
	}
	return s
}

func (p *poller) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Poll loop context cancelled", zap.String("worker_name", p.name))
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *poller) runOnce(ctx context.Context) {
	processed, failed, err := p.tick(ctx)
	if err != nil && ctx.Err() == nil {
		p.logger.Error("Worker round failed", zap.String("worker_name", p.name), zap.Error(err))
	}

	p.mu.Lock()
	p.processed += processed
	p.failed += failed
	p.lastRun = time.Now()
	p.lastError = err
	p.mu.Unlock()
}
