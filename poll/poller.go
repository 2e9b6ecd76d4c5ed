package poll

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"keyforge/models"
)

const sweepLimit = 100

// Reconciler advances one in-flight task against the provider.
type Reconciler interface {
	Reconcile(ctx context.Context, task *models.Task) (*models.Task, error)
}

// Lister yields the tasks still waiting on the provider.
type Lister interface {
	ListInProgress(ctx context.Context, limit int) ([]*models.Task, error)
}

// Poller sweeps IN_PROGRESS tasks on a fixed interval so tasks nobody is
// watching still reach a terminal state. Each task is reconciled under a
// bounded semaphore; a task drops out of the sweep on its own once it turns
// terminal and stops being listed. Cancel the context to stop.
type Poller struct {
	lister     Lister
	reconciler Reconciler
	interval   time.Duration
	sem        chan struct{}
	wg         sync.WaitGroup
	logger     *zap.Logger
}

func New(lister Lister, reconciler Reconciler, interval time.Duration, maxWorkers int, logger *zap.Logger) *Poller {
	return &Poller{
		lister:     lister,
		reconciler: reconciler,
		interval:   interval,
		sem:        make(chan struct{}, maxWorkers),
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight reconciles.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

func (p *Poller) sweep(ctx context.Context) {
	tasks, err := p.lister.ListInProgress(ctx, sweepLimit)
	if err != nil {
		p.logger.Error("Sweep listing failed", zap.Error(err))
		return
	}

	for _, task := range tasks {
		p.submit(ctx, task)
	}
}

func (p *Poller) submit(ctx context.Context, task *models.Task) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
			if _, err := p.reconciler.Reconcile(ctx, task); err != nil {
				p.logger.Error("Background reconcile failed",
					zap.String("task_id", task.ID),
					zap.Error(err),
				)
			}
		case <-ctx.Done():
		}
	}()
}
