package alerts

import (
	"context"
	"sync"
	"time"

	"github.com/careoclock/server/internal/store"
	"go.uber.org/zap"
)

// Dispatcher drains the evaluation queue in the background. Intake
// submissions enqueue the user ID fire-and-forget; workers here pick the
// IDs up and run the alert rules, so evaluation failures never surface to
// the request path.
type Dispatcher struct {
	store   *store.Store
	engine  *Engine
	logger  *zap.Logger
	workers int

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewDispatcher(st *store.Store, engine *Engine, logger *zap.Logger, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 2
	}
	return &Dispatcher{
		store:   st,
		engine:  engine,
		logger:  logger,
		workers: workers,
	}
}

// Start launches the worker goroutines. Calling Start on a running
// dispatcher is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.running = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
	d.logger.Info("alert dispatcher started", zap.Int("workers", d.workers))
}

// Stop signals the workers and waits for them to drain
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("alert dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	// Poll the queue; back off when empty.
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drain(ctx, id)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		userID, err := d.store.DequeueEvaluation()
		if err == store.ErrQueueEmpty {
			return
		}
		if err != nil {
			d.logger.Error("dequeue failed", zap.Error(err))
			return
		}

		if _, err := d.engine.EvaluateUser(ctx, userID); err != nil {
			// Non-fatal: the next intake or sweep re-evaluates.
			d.logger.Error("async alert evaluation failed",
				zap.Int("worker", workerID),
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
}
