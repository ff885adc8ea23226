package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/provenance"
)

// ResultEvent announces a finished code request. Generated code is not
// carried; consumers fetch it from the task ledger or the saved file.
type ResultEvent struct {
	TaskID      string        `json:"task_id"`
	Context     string        `json:"context"`
	Status      models.Status `json:"status"`
	Success     bool          `json:"success"`
	Error       string        `json:"error_message,omitempty"`
	SavedToPath string        `json:"saved_to_path,omitempty"`
	CodeHash    string        `json:"code_hash,omitempty"`
	CodeChars   int           `json:"code_chars"`
	Placeholder []string      `json:"placeholdered,omitempty"`
	OccurredAt  time.Time     `json:"occurred_at"`
}

// Subject returns the subject events for a request context are published on
func Subject(requestContext string) string {
	return SubjectPrefix + "." + strings.ToLower(requestContext)
}

// NewResultEvent builds the event for a finished request
func NewResultEvent(req models.GenerationRequest, res *models.GenerationResult, at time.Time) ResultEvent {
	ev := ResultEvent{
		TaskID:      res.TaskID,
		Context:     string(req.Context),
		Status:      res.Status,
		Success:     res.Status.IsSuccess(),
		Error:       res.Error,
		SavedToPath: res.SavedToPath,
		CodeChars:   len(res.Code),
		OccurredAt:  at.UTC(),
	}
	if res.Code != "" {
		ev.CodeHash = provenance.Hash(res.Code)
	}
	if res.Outline != nil && res.ComponentResults != nil {
		ev.Placeholder = res.ComponentResults.Failed(leafKeys(res.Outline))
	}
	return ev
}

func leafKeys(o *models.Outline) []string {
	leaves := o.Leaves()
	keys := make([]string, len(leaves))
	for i, l := range leaves {
		keys[i] = l.Key
	}
	return keys
}

// DecodeEvent parses an event payload
func DecodeEvent(data []byte) (ResultEvent, error) {
	var ev ResultEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ResultEvent{}, fmt.Errorf("decode result event: %w", err)
	}
	return ev, nil
}

// PublishResult emits the outcome of a request. With JetStream the task id
// is the message id, so a retried publish is stored once.
func (b *Bus) PublishResult(ctx context.Context, req models.GenerationRequest, res *models.GenerationResult) error {
	if !b.Connected() {
		return nats.ErrConnectionClosed
	}
	payload, err := json.Marshal(NewResultEvent(req, res, time.Now()))
	if err != nil {
		return err
	}
	subject := Subject(string(req.Context))

	if b.js == nil {
		return b.nc.Publish(subject, payload)
	}
	_, err = b.js.Publish(subject, payload, nats.Context(ctx), nats.MsgId(res.TaskID))
	return err
}
