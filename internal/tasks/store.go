// Package tasks keeps the ledger of code requests and their progress
package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/axiom/ucws/internal/models"
)

// ErrNotFound is returned for unknown task ids
var ErrNotFound = errors.New("task not found")

// Store persists tasks. Save inserts or replaces a task by id.
type Store interface {
	Save(ctx context.Context, task models.Task) error
	Get(ctx context.Context, id string) (*models.Task, error)
	// List returns the most recently created tasks first
	List(ctx context.Context, limit int) ([]models.Task, error)
}

// MemoryStore keeps tasks in process memory
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]models.Task
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]models.Task)}
}

func (m *MemoryStore) Save(_ context.Context, task models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]models.Task, error) {
	m.mu.RLock()
	out := make([]models.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
