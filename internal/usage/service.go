// Package usage keeps the ledger of LLM calls made by the code service
package usage

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/axiom/ucws/internal/llm"
)

// ModelUsage aggregates the calls made against one gateway and model
type ModelUsage struct {
	Gateway      string        `json:"gateway"`
	Model        string        `json:"model"`
	Calls        int64         `json:"calls"`
	Failures     int64         `json:"failures"`
	PromptChars  int64         `json:"prompt_chars"`
	OutputChars  int64         `json:"output_chars"`
	TotalLatency time.Duration `json:"total_latency_ns"`
}

// Repository persists usage records
type Repository interface {
	Insert(ctx context.Context, rec llm.UsageRecord, at time.Time) error
	Summarize(ctx context.Context, since time.Time) ([]ModelUsage, error)
}

// Service handles usage tracking. It implements llm.UsageSink.
type Service struct {
	repo   Repository
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// RecordUsage logs one finished gateway call
func (s *Service) RecordUsage(ctx context.Context, rec llm.UsageRecord) error {
	if err := s.repo.Insert(ctx, rec, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Debug("recorded llm usage",
		zap.String("gateway", rec.Gateway),
		zap.String("model", rec.Model),
		zap.String("outcome", rec.Outcome),
		zap.Duration("latency", rec.Latency),
	)
	return nil
}

// Summary returns per-model totals for calls made in the last window
func (s *Service) Summary(ctx context.Context, window time.Duration) ([]ModelUsage, error) {
	return s.repo.Summarize(ctx, s.now().UTC().Add(-window))
}

// MemoryRepository keeps usage in process memory
type MemoryRepository struct {
	mu      sync.Mutex
	records []memoryRecord
}

type memoryRecord struct {
	rec llm.UsageRecord
	at  time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Insert(_ context.Context, rec llm.UsageRecord, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, memoryRecord{rec: rec, at: at})
	return nil
}

func (m *MemoryRepository) Summarize(_ context.Context, since time.Time) ([]ModelUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byKey := map[[2]string]*ModelUsage{}
	for _, r := range m.records {
		if r.at.Before(since) {
			continue
		}
		key := [2]string{r.rec.Gateway, r.rec.Model}
		u, ok := byKey[key]
		if !ok {
			u = &ModelUsage{Gateway: r.rec.Gateway, Model: r.rec.Model}
			byKey[key] = u
		}
		u.Calls++
		if r.rec.Outcome != "success" {
			u.Failures++
		}
		u.PromptChars += int64(r.rec.PromptChars)
		u.OutputChars += int64(r.rec.OutputChars)
		u.TotalLatency += r.rec.Latency
	}

	out := make([]ModelUsage, 0, len(byKey))
	for _, u := range byKey {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Gateway != out[j].Gateway {
			return out[i].Gateway < out[j].Gateway
		}
		return out[i].Model < out[j].Model
	})
	return out, nil
}
