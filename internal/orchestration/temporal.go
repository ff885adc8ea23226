// Package orchestration runs code requests as Temporal workflows so long
// hierarchical generations survive client disconnects and can be cancelled.
package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/axiom/ucws/internal/models"
)

// DefaultTaskQueue is the queue code jobs run on
const DefaultTaskQueue = "ucws-code-jobs"

// Job states reported by Status
const (
	JobRunning    = "RUNNING"
	JobCompleted  = "COMPLETED"
	JobFailed     = "FAILED"
	JobCancelled  = "CANCELLED"
	JobTerminated = "TERMINATED"
	JobTimedOut   = "TIMED_OUT"
	JobUnknown    = "UNKNOWN"
)

// ErrJobNotFound is returned for unknown job ids
var ErrJobNotFound = errors.New("job not found")

// Dial creates the Temporal client. The client is a heavyweight object that
// should be created once per process.
func Dial(address, namespace string) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  address,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create temporal client: %w", err)
	}
	return c, nil
}

// Jobs starts and inspects code job workflows
type Jobs struct {
	client    client.Client
	taskQueue string
	logger    *zap.Logger
}

// NewJobs creates a job manager on an open client
func NewJobs(c client.Client, taskQueue string, logger *zap.Logger) *Jobs {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{client: c, taskQueue: taskQueue, logger: logger}
}

// Start launches a workflow for req and returns its job id
func (j *Jobs) Start(ctx context.Context, op models.Operation, req models.GenerationRequest) (string, error) {
	in := models.CodeJobInput{
		JobID:     "ucws-job-" + uuid.NewString(),
		Operation: op,
		Request:   req,
	}
	run, err := j.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        in.JobID,
		TaskQueue: j.taskQueue,
	}, GenerateCodeWorkflow, in)
	if err != nil {
		return "", fmt.Errorf("start code job: %w", err)
	}
	j.logger.Info("code job started",
		zap.String("job_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
		zap.String("operation", string(op)),
		zap.String("context", string(req.Context)),
	)
	return run.GetID(), nil
}

// Status reports the state of a job and, once it completed, its result
func (j *Jobs) Status(ctx context.Context, jobID string) (*models.CodeJobStatus, error) {
	desc, err := j.client.DescribeWorkflowExecution(ctx, jobID, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("describe code job: %w", err)
	}

	status := &models.CodeJobStatus{
		JobID: jobID,
		State: jobState(desc.GetWorkflowExecutionInfo().GetStatus()),
	}
	if status.State != JobCompleted {
		return status, nil
	}

	var res models.GenerationResult
	if err := j.client.GetWorkflow(ctx, jobID, "").Get(ctx, &res); err != nil {
		return nil, fmt.Errorf("fetch code job result: %w", err)
	}
	status.Result = &res
	return status, nil
}

// Cancel requests cancellation. The running activity observes it on its next
// heartbeat and the code service stops before any write.
func (j *Jobs) Cancel(ctx context.Context, jobID string) error {
	if err := j.client.CancelWorkflow(ctx, jobID, ""); err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("cancel code job: %w", err)
	}
	j.logger.Info("code job cancellation requested", zap.String("job_id", jobID))
	return nil
}

func jobState(s enumspb.WorkflowExecutionStatus) string {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return JobRunning
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return JobCompleted
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED:
		return JobFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED:
		return JobCancelled
	case enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return JobTerminated
	case enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return JobTimedOut
	}
	return JobUnknown
}
