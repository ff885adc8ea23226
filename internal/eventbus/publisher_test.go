package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/provenance"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "ucws.generation.hierarchical_gen_complete_tool", Subject(string(models.ContextHierarchicalComplete)))
	assert.Equal(t, "ucws.generation.self_fix_tool", Subject(string(models.ContextSelfFix)))
}

func TestNewResultEvent(t *testing.T) {
	code := "def add(a, b):\n    pass  # TODO: Implement\n"
	done := "def mul(a, b):\n    return a * b"
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.FixedZone("X", 3600))
	req := models.GenerationRequest{Context: models.ContextHierarchicalComplete}
	res := &models.GenerationResult{
		TaskID:      "task-1",
		Status:      models.StatusPartialAssembled,
		Code:        code,
		Error:       "placeholders substituted for: add",
		SavedToPath: "/out/calc.py",
		Outline: &models.Outline{Components: []models.ComponentSpec{
			{Kind: models.KindFunction, Name: "add"},
			{Kind: models.KindFunction, Name: "mul"},
		}},
		ComponentResults: models.ComponentResults{"add": nil, "mul": &done},
	}

	ev := NewResultEvent(req, res, at)

	assert.Equal(t, "task-1", ev.TaskID)
	assert.Equal(t, "HIERARCHICAL_GEN_COMPLETE_TOOL", ev.Context)
	assert.True(t, ev.Success)
	assert.Equal(t, provenance.Hash(code), ev.CodeHash)
	assert.Equal(t, len(code), ev.CodeChars)
	assert.Equal(t, []string{"add"}, ev.Placeholder)
	assert.Equal(t, at.UTC(), ev.OccurredAt)

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev, decoded)
}

func TestNewResultEvent_Failure(t *testing.T) {
	ev := NewResultEvent(
		models.GenerationRequest{Context: models.ContextSelfFix},
		&models.GenerationResult{Status: models.StatusNoOriginalCode, Error: "missing"},
		time.Now(),
	)
	assert.False(t, ev.Success)
	assert.Empty(t, ev.CodeHash)
	assert.Zero(t, ev.CodeChars)
	assert.Nil(t, ev.Placeholder)
}

func TestDecodeEvent_Malformed(t *testing.T) {
	_, err := DecodeEvent([]byte("{"))
	assert.Error(t, err)
}

func TestBus_Disconnected(t *testing.T) {
	var b *Bus
	assert.False(t, b.Connected())
	err := b.PublishResult(context.Background(), models.GenerationRequest{}, &models.GenerationResult{})
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
	_, err = b.Subscribe("", func(ResultEvent) {})
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
	b.Close()
}
