package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/axiom/ucws/internal/middleware"
	"github.com/axiom/ucws/internal/tasks"
	"github.com/axiom/ucws/internal/usage"
)

// UsageReporter summarizes LLM usage
type UsageReporter interface {
	Summary(ctx context.Context, window time.Duration) ([]usage.ModelUsage, error)
}

// TaskHandler exposes the task ledger and LLM usage
type TaskHandler struct {
	store  tasks.Store
	usage  UsageReporter
	logger *zap.Logger
}

// NewTaskHandler creates a new task handler; usage may be nil
func NewTaskHandler(store tasks.Store, usage UsageReporter, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{store: store, usage: usage, logger: logger}
}

// List returns recent tasks, newest first
// @Summary List code tasks
// @Tags tasks
// @Produce json
// @Param limit query int false "Maximum tasks (default 50, max 500)"
// @Success 200 {array} models.Task
// @Security Bearer
// @Router /tasks [get]
func (h *TaskHandler) List(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}

	list, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list tasks", zap.Error(err))
		middleware.RespondError(c, http.StatusServiceUnavailable, middleware.ErrCodeStoreUnavailable, "task store unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": list, "count": len(list)})
}

// Get returns one task
// @Summary Get a code task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} models.Task
// @Failure 404 {object} middleware.APIError
// @Security Bearer
// @Router /tasks/{id} [get]
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, tasks.ErrNotFound) {
		middleware.NotFound(c, "task not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get task", zap.String("task_id", c.Param("id")), zap.Error(err))
		middleware.RespondError(c, http.StatusServiceUnavailable, middleware.ErrCodeStoreUnavailable, "task store unavailable")
		return
	}
	c.JSON(http.StatusOK, task)
}

// Usage summarizes LLM calls over a window
// @Summary LLM usage summary
// @Tags tasks
// @Produce json
// @Param window query string false "Go duration, default 24h"
// @Success 200 {array} usage.ModelUsage
// @Security Bearer
// @Router /usage [get]
func (h *TaskHandler) Usage(c *gin.Context) {
	if h.usage == nil {
		middleware.NotFound(c, "usage tracking is disabled")
		return
	}
	window := 24 * time.Hour
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			middleware.BadRequest(c, "window must be a positive duration such as 1h")
			return
		}
		window = d
	}

	summary, err := h.usage.Summary(c.Request.Context(), window)
	if err != nil {
		h.logger.Error("failed to summarize usage", zap.Error(err))
		middleware.RespondError(c, http.StatusServiceUnavailable, middleware.ErrCodeStoreUnavailable, "usage store unavailable")
		return
	}
	c.JSON(http.StatusOK, gin.H{"window": window.String(), "models": summary})
}
