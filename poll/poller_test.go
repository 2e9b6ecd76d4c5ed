package poll

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"keyforge/models"
)

type fakeLister struct {
	mu    sync.Mutex
	tasks []*models.Task
}

func (l *fakeLister) ListInProgress(ctx context.Context, limit int) ([]*models.Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*models.Task
	for _, task := range l.tasks {
		if task.Status == models.StatusInProgress && len(out) < limit {
			out = append(out, task)
		}
	}
	return out, nil
}

type fakeReconciler struct {
	mu    sync.Mutex
	calls map[string]int
	onRec func(task *models.Task)
}

func (r *fakeReconciler) Reconcile(ctx context.Context, task *models.Task) (*models.Task, error) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[task.ID]++
	r.mu.Unlock()
	if r.onRec != nil {
		r.onRec(task)
	}
	return task, nil
}

func (r *fakeReconciler) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[id]
}

func TestPoller_ReconcilesInProgressTasks(t *testing.T) {
	lister := &fakeLister{tasks: []*models.Task{
		{ID: "task-1", Status: models.StatusInProgress},
		{ID: "task-2", Status: models.StatusSucceeded},
	}}
	rec := &fakeReconciler{}

	poller := New(lister, rec, 10*time.Millisecond, 2, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for rec.count("task-1") == 0 {
		select {
		case <-deadline:
			t.Fatal("in-progress task was never reconciled")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done

	if rec.count("task-2") != 0 {
		t.Error("terminal task should never be swept")
	}
}

func TestPoller_StopsSweepingTerminalTasks(t *testing.T) {
	task := &models.Task{ID: "task-1", Status: models.StatusInProgress}
	lister := &fakeLister{tasks: []*models.Task{task}}

	var once sync.Once
	rec := &fakeReconciler{}
	rec.onRec = func(got *models.Task) {
		once.Do(func() {
			lister.mu.Lock()
			task.Status = models.StatusSucceeded
			lister.mu.Unlock()
		})
	}

	poller := New(lister, rec, 10*time.Millisecond, 2, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for rec.count("task-1") == 0 {
		select {
		case <-deadline:
			t.Fatal("task was never reconciled")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Give a few more sweep intervals a chance, then confirm the count
	// settled: a terminal task drops out of the listing.
	time.Sleep(50 * time.Millisecond)
	settled := rec.count("task-1")
	time.Sleep(50 * time.Millisecond)
	if rec.count("task-1") != settled {
		t.Errorf("terminal task still being swept: %d -> %d", settled, rec.count("task-1"))
	}

	cancel()
	<-done
}
