package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/provenance"
)

// ErrTerminal is returned when a finished task is updated again
var ErrTerminal = errors.New("task already finished")

// Recorder moves tasks through their lifecycle on top of a Store
type Recorder struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// Store returns the underlying store for read access
func (r *Recorder) Store() Store {
	return r.store
}

// Begin records a new task
func (r *Recorder) Begin(ctx context.Context, task models.Task) error {
	now := r.now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.TaskInitializing
	}
	return r.store.Save(ctx, task)
}

// Update moves a running task to status
func (r *Recorder) Update(ctx context.Context, id string, status models.TaskStatus, reason string) error {
	return r.modify(ctx, id, func(t *models.Task) {
		t.Status = status
		t.StatusReason = reason
	})
}

// Finish records the terminal outcome of a request
func (r *Recorder) Finish(ctx context.Context, id string, res *models.GenerationResult) error {
	return r.modify(ctx, id, func(t *models.Task) {
		t.Status = res.Status.TaskStatus()
		t.ResultStatus = res.Status
		t.StatusReason = res.Error
		if t.StatusReason == "" {
			t.StatusReason = string(res.Status)
		}
		if res.Code != "" {
			t.CodeHash = provenance.Hash(res.Code)
		}
	})
}

func (r *Recorder) modify(ctx context.Context, id string, fn func(*models.Task)) error {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTerminal, id, t.Status)
	}
	fn(t)
	t.UpdatedAt = r.now().UTC()
	if err := r.store.Save(ctx, *t); err != nil {
		return err
	}
	r.logger.Debug("task updated",
		zap.String("task_id", id),
		zap.String("status", string(t.Status)),
	)
	return nil
}
