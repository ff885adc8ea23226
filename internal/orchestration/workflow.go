package orchestration

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/axiom/ucws/internal/models"
)

const (
	jobTimeout        = 30 * time.Minute
	heartbeatTimeout  = 30 * time.Second
	heartbeatInterval = 5 * time.Second
)

// CodeRunner is the code service as seen by the activity
type CodeRunner interface {
	GenerateCode(ctx context.Context, req models.GenerationRequest) *models.GenerationResult
	ModifyCode(ctx context.Context, req models.GenerationRequest) *models.GenerationResult
}

// GenerateCodeWorkflow runs one code request as a single activity. Requests
// are not retried: a second attempt would repeat LLM calls and writes.
func GenerateCodeWorkflow(ctx workflow.Context, in models.CodeJobInput) (*models.GenerationResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: jobTimeout,
		HeartbeatTimeout:    heartbeatTimeout,
		WaitForCancellation: true,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var a *Activities
	var res models.GenerationResult
	if err := workflow.ExecuteActivity(ctx, a.RunCodeJob, in).Get(ctx, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Activities binds the code service to the worker
type Activities struct {
	Runner            CodeRunner
	HeartbeatInterval time.Duration
}

// RunCodeJob calls the code service, heartbeating while it runs so workflow
// cancellation reaches the request context.
func (a *Activities) RunCodeJob(ctx context.Context, in models.CodeJobInput) (*models.GenerationResult, error) {
	var call func(context.Context, models.GenerationRequest) *models.GenerationResult
	switch in.Operation {
	case models.OperationGenerate:
		call = a.Runner.GenerateCode
	case models.OperationModify:
		call = a.Runner.ModifyCode
	default:
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unknown operation %q", in.Operation), "InvalidOperation", nil)
	}

	interval := a.HeartbeatInterval
	if interval <= 0 {
		interval = heartbeatInterval
	}
	done := make(chan *models.GenerationResult, 1)
	go func() { done <- call(ctx, in.Request) }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case res := <-done:
			return res, nil
		case <-ticker.C:
			activity.RecordHeartbeat(ctx, in.JobID)
		}
	}
}

// NewWorker registers the workflow and activities on taskQueue
func NewWorker(c client.Client, taskQueue string, runner CodeRunner) worker.Worker {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(GenerateCodeWorkflow)
	w.RegisterActivity(&Activities{Runner: runner})
	return w
}
