package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/provenance"
)

func newRecorder(t *testing.T) (*Recorder, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	r := NewRecorder(store, zaptest.NewLogger(t))
	clock := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return r, store
}

func TestRecorder_Lifecycle(t *testing.T) {
	r, store := newRecorder(t)
	ctx := context.Background()

	require.NoError(t, r.Begin(ctx, models.Task{
		ID:          "t1",
		Type:        models.TaskToolCreation,
		Context:     models.ContextHierarchicalComplete,
		Description: "adder",
	}))
	got, err := store.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskInitializing, got.Status)
	created := got.CreatedAt

	require.NoError(t, r.Update(ctx, "t1", models.TaskPlanningCode, "Generating hierarchical outline"))
	got, _ = store.Get(ctx, "t1")
	assert.Equal(t, models.TaskPlanningCode, got.Status)
	assert.Equal(t, "Generating hierarchical outline", got.StatusReason)

	code := "def add(a, b):\n    return a + b\n"
	require.NoError(t, r.Finish(ctx, "t1", &models.GenerationResult{
		Status: models.StatusPartialAssembled,
		Code:   code,
		Error:  "placeholders substituted for: add",
	}))
	got, _ = store.Get(ctx, "t1")
	assert.Equal(t, models.TaskCompleted, got.Status)
	assert.Equal(t, models.StatusPartialAssembled, got.ResultStatus)
	assert.Equal(t, provenance.Hash(code), got.CodeHash)
	assert.Equal(t, created, got.CreatedAt)
	assert.True(t, got.UpdatedAt.After(created))

	err = r.Update(ctx, "t1", models.TaskGeneratingCode, "again")
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestRecorder_FinishMapsFailures(t *testing.T) {
	tests := []struct {
		status models.Status
		want   models.TaskStatus
	}{
		{models.StatusOutlineParsing, models.TaskFailedCodeGeneration},
		{models.StatusNoOriginalCode, models.TaskFailedPreReview},
		{models.StatusSavingAssembledCode, models.TaskFailedDuringApply},
		{models.StatusCancelled, models.TaskUserCancelled},
		{models.StatusGenerateUnexpected, models.TaskFailedUnknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			r, store := newRecorder(t)
			ctx := context.Background()
			require.NoError(t, r.Begin(ctx, models.Task{ID: "x"}))
			require.NoError(t, r.Finish(ctx, "x", &models.GenerationResult{Status: tt.status}))

			got, err := store.Get(ctx, "x")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, string(tt.status), got.StatusReason)
			assert.Empty(t, got.CodeHash)
		})
	}
}

func TestRecorder_UnknownTask(t *testing.T) {
	r, _ := newRecorder(t)
	err := r.Update(context.Background(), "missing", models.TaskGeneratingCode, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_List(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, models.Task{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute)}))
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	two, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}
