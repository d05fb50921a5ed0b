package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"apflow/internal/config"
	"apflow/internal/logging"
	"apflow/internal/services"
	"apflow/internal/store"
)

// Manager runs the worker pool that drains the task queue and the reaper
// that requeues abandoned claims.
type Manager struct {
	cfg    *config.Config
	store  *store.Store
	driver *Driver
	logger *slog.Logger

	idleDelay  time.Duration
	claimDelay time.Duration
	errorDelay time.Duration
	staleAfter time.Duration
	reapEvery  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager constructs a manager; Start spawns the loops.
func NewManager(cfg *config.Config, st *store.Store, driver *Driver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:        cfg,
		store:      st,
		driver:     driver,
		logger:     logger.With(logging.String(logging.FieldComponent, "workflow")),
		idleDelay:  time.Duration(cfg.Workflow.QueuePollMS) * time.Millisecond,
		claimDelay: time.Duration(cfg.Workflow.ClaimRetryMS) * time.Millisecond,
		errorDelay: time.Duration(cfg.Workflow.ErrorRetrySeconds) * time.Second,
		staleAfter: time.Duration(cfg.Workflow.StaleTaskTimeoutSecs) * time.Second,
		reapEvery:  time.Duration(cfg.Workflow.ReapIntervalSeconds) * time.Second,
	}
}

// Start launches the configured number of workers plus the reaper. It is an
// error to start a running manager.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow manager already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for i := 0; i < m.cfg.Workflow.WorkerCount; i++ {
		m.wg.Add(1)
		go func(worker int) {
			defer m.wg.Done()
			m.workerLoop(runCtx, worker)
		}(i)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reaperLoop(runCtx)
	}()

	m.logger.Info("workflow manager started",
		logging.Int("workers", m.cfg.Workflow.WorkerCount))
	return nil
}

// Stop cancels the loops and waits for in-flight tasks to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow manager stopped")
}

// Running reports whether the manager loops are active.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// workerLoop claims process_invoice tasks until the context ends. Human
// review and approval tasks are left queued for people.
func (m *Manager) workerLoop(ctx context.Context, worker int) {
	log := m.logger.With(logging.Int("worker", worker))
	for {
		if ctx.Err() != nil {
			return
		}

		task, err := m.store.ClaimNext(ctx, store.TaskProcessInvoice)
		switch {
		case errors.Is(err, store.ErrClaimConflict):
			if !sleepCtx(ctx, m.claimDelay) {
				return
			}
			continue
		case err != nil:
			log.Error("claim failed", logging.Error(err))
			if !sleepCtx(ctx, m.errorDelay) {
				return
			}
			continue
		case task == nil:
			if !sleepCtx(ctx, m.idleDelay) {
				return
			}
			continue
		}

		taskCtx := services.WithTaskID(ctx, task.ID)
		taskCtx = services.WithInvoiceID(taskCtx, task.InvoiceID)
		if err := m.driver.Run(taskCtx, task); err != nil {
			log.Error("task run failed", logging.Error(err),
				logging.String(logging.FieldTaskID, task.ID),
				logging.String(logging.FieldInvoiceID, task.InvoiceID))
			if !sleepCtx(ctx, m.errorDelay) {
				return
			}
		}
	}
}

// reaperLoop periodically requeues claims whose worker died mid-task.
func (m *Manager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(m.reapEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.staleAfter)
			count, err := m.store.RequeueStale(ctx, cutoff)
			if err != nil {
				m.logger.Error("stale task reap failed", logging.Error(err))
				continue
			}
			if count > 0 {
				m.logger.Warn("requeued stale tasks", logging.Int64("count", count))
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Millisecond
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
