package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/axiom/ucws/internal/middleware"
	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/orchestration"
)

// JobRunner runs code requests in the background
type JobRunner interface {
	Start(ctx context.Context, op models.Operation, req models.GenerationRequest) (string, error)
	Status(ctx context.Context, jobID string) (*models.CodeJobStatus, error)
	Cancel(ctx context.Context, jobID string) error
}

// JobHandler exposes asynchronous code jobs. A nil runner answers 503.
type JobHandler struct {
	jobs   JobRunner
	logger *zap.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(jobs JobRunner, logger *zap.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// Start launches a background job for any context
// @Summary Start a code job
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body CodeRequest true "Code request"
// @Success 202 {object} map[string]string
// @Failure 400 {object} middleware.APIError
// @Failure 503 {object} middleware.APIError
// @Security Bearer
// @Router /code/jobs [post]
func (h *JobHandler) Start(c *gin.Context) {
	if h.jobs == nil {
		middleware.JobsUnavailable(c)
		return
	}
	req, ok := bindCodeRequest(c)
	if !ok {
		return
	}

	op := models.OperationGenerate
	if req.Context.IsModify() {
		op = models.OperationModify
	}
	jobID, err := h.jobs.Start(c.Request.Context(), op, req)
	if err != nil {
		h.logger.Error("failed to start code job", zap.Error(err))
		middleware.InternalError(c, "failed to start job")
		return
	}

	middleware.SetJobID(c, jobID)
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":    jobID,
		"operation": op,
		"state":     orchestration.JobRunning,
	})
}

// Status reports a job's state and, when finished, its result
// @Summary Get code job status
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} models.CodeJobStatus
// @Failure 404 {object} middleware.APIError
// @Security Bearer
// @Router /code/jobs/{id} [get]
func (h *JobHandler) Status(c *gin.Context) {
	if h.jobs == nil {
		middleware.JobsUnavailable(c)
		return
	}
	status, err := h.jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.jobError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Cancel requests cancellation of a running job
// @Summary Cancel a code job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 202 {object} map[string]string
// @Failure 404 {object} middleware.APIError
// @Security Bearer
// @Router /code/jobs/{id}/cancel [post]
func (h *JobHandler) Cancel(c *gin.Context) {
	if h.jobs == nil {
		middleware.JobsUnavailable(c)
		return
	}
	jobID := c.Param("id")
	if err := h.jobs.Cancel(c.Request.Context(), jobID); err != nil {
		h.jobError(c, err)
		return
	}
	middleware.SetJobID(c, jobID)
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "state": "CANCEL_REQUESTED"})
}

func (h *JobHandler) jobError(c *gin.Context, err error) {
	if errors.Is(err, orchestration.ErrJobNotFound) {
		middleware.NotFound(c, "job not found")
		return
	}
	h.logger.Error("code job lookup failed", zap.String("job_id", c.Param("id")), zap.Error(err))
	middleware.InternalError(c, "job lookup failed")
}
