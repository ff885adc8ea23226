package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/axiom/ucws/internal/middleware"
	"github.com/axiom/ucws/internal/models"
)

// CodeService is the synchronous code pipeline
type CodeService interface {
	GenerateCode(ctx context.Context, req models.GenerationRequest) *models.GenerationResult
	ModifyCode(ctx context.Context, req models.GenerationRequest) *models.GenerationResult
}

// CodeHandler handles the code generation and modification endpoints
type CodeHandler struct {
	service CodeService
	timeout time.Duration
	logger  *zap.Logger
}

// NewCodeHandler creates a new code handler. timeout bounds a synchronous
// request; zero leaves it to the client connection.
func NewCodeHandler(service CodeService, timeout time.Duration, logger *zap.Logger) *CodeHandler {
	return &CodeHandler{service: service, timeout: timeout, logger: logger}
}

// CodeRequest is the request body shared by generate and modify
type CodeRequest struct {
	Context           string                 `json:"context" binding:"required"`
	Payload           string                 `json:"request_payload" binding:"required"`
	Language          string                 `json:"language"`
	TargetPath        string                 `json:"target_path"`
	LLMOverrides      *models.LLMOverrides   `json:"llm_config_overrides"`
	AdditionalContext map[string]interface{} `json:"additional_context"`

	ExistingCode *string `json:"existing_code"`
	ModulePath   string  `json:"module_path"`
	FunctionName string  `json:"function_name"`
	ApplyChanges bool    `json:"apply_changes"`
}

// ToModel validates the context and builds the service request
func (r CodeRequest) ToModel() (models.GenerationRequest, error) {
	ctx, err := models.ParseContext(r.Context)
	if err != nil {
		return models.GenerationRequest{}, err
	}
	return models.GenerationRequest{
		Context:           ctx,
		Payload:           r.Payload,
		Language:          r.Language,
		TargetPath:        r.TargetPath,
		LLMOverrides:      r.LLMOverrides,
		AdditionalContext: r.AdditionalContext,
		ExistingCode:      r.ExistingCode,
		ModulePath:        r.ModulePath,
		FunctionName:      r.FunctionName,
		ApplyChanges:      r.ApplyChanges,
	}, nil
}

// Generate runs a generation context and returns its result
// @Summary Generate code
// @Tags code
// @Accept json
// @Produce json
// @Param request body CodeRequest true "Generation request"
// @Success 200 {object} models.GenerationResult
// @Failure 400 {object} middleware.APIError
// @Security Bearer
// @Router /code/generate [post]
func (h *CodeHandler) Generate(c *gin.Context) {
	h.run(c, false)
}

// Modify runs a modification context and returns its result
// @Summary Modify code
// @Tags code
// @Accept json
// @Produce json
// @Param request body CodeRequest true "Modification request"
// @Success 200 {object} models.GenerationResult
// @Failure 400 {object} middleware.APIError
// @Security Bearer
// @Router /code/modify [post]
func (h *CodeHandler) Modify(c *gin.Context) {
	h.run(c, true)
}

func (h *CodeHandler) run(c *gin.Context, modify bool) {
	req, ok := bindCodeRequest(c)
	if !ok {
		return
	}
	if req.Context.IsModify() != modify {
		middleware.BadRequest(c, "context "+string(req.Context)+" is not valid for this endpoint")
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	var res *models.GenerationResult
	if modify {
		res = h.service.ModifyCode(ctx, req)
	} else {
		res = h.service.GenerateCode(ctx, req)
	}

	h.logger.Debug("code request served",
		zap.String("task_id", res.TaskID),
		zap.String("status", string(res.Status)),
		zap.Int("log_lines", len(res.Logs)),
	)
	middleware.SetCodeOutcome(c, string(req.Context), res.TaskID, string(res.Status))
	c.JSON(statusCode(ctx, res), res)
}

func bindCodeRequest(c *gin.Context) (models.GenerationRequest, bool) {
	var body CodeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.BadRequest(c, err.Error())
		return models.GenerationRequest{}, false
	}
	req, err := body.ToModel()
	if err != nil {
		middleware.RespondErrorWithDetails(c, http.StatusBadRequest, middleware.ErrCodeBadRequest, "unsupported context", err.Error())
		return models.GenerationRequest{}, false
	}
	return req, true
}

// statusCode maps a terminal result onto HTTP. The body always carries the
// full result; only a missing collaborator and a timeout change the code.
func statusCode(ctx context.Context, res *models.GenerationResult) int {
	switch res.Status {
	case models.StatusLLMProviderMissing, models.StatusSelfModServiceMissing:
		return http.StatusServiceUnavailable
	case models.StatusCancelled:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
	}
	return http.StatusOK
}
