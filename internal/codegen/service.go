// Package codegen is the code service: it selects the pipeline for a request
// context, drives the LLM stages and turns every outcome into a terminal
// models.GenerationResult.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/axiom/ucws/internal/llm"
	"github.com/axiom/ucws/internal/metrics"
	"github.com/axiom/ucws/internal/models"
)

// Model task keys
const (
	TaskCodeGeneration   = "code_generation"
	TaskCodeOutline      = "code_outline"
	TaskCodeDetail       = "code_detail"
	TaskCodeModification = "code_modification"
)

// LLM parameter defaults per stage
const (
	generateTemperature = 0.3
	generateMaxTokens   = 2048
	detailTemperature   = 0.2
	detailMaxTokens     = 1024
	modifyTemperature   = 0.2
	modifyMaxTokens     = 2048

	// Completions shorter than this are not plausible code
	minPlausibleCode = 5

	defaultDetailConcurrency = 4
)

// SelfModifier reads and replaces function source in the code base
type SelfModifier interface {
	ReadFunctionSource(ctx context.Context, modulePath, functionName string) (string, error)
	EditFunctionSource(ctx context.Context, modulePath, functionName, newCode string) error
}

// FileWriter persists generated code and returns the absolute path written
type FileWriter interface {
	WriteToFile(ctx context.Context, path, content string) (string, error)
}

// TaskTracker records request progress in the task ledger
type TaskTracker interface {
	Begin(ctx context.Context, task models.Task) error
	Update(ctx context.Context, id string, status models.TaskStatus, reason string) error
	Finish(ctx context.Context, id string, result *models.GenerationResult) error
}

// EventPublisher announces finished requests
type EventPublisher interface {
	PublishResult(ctx context.Context, req models.GenerationRequest, res *models.GenerationResult) error
}

// SyntaxChecker reports syntax problems in Python source
type SyntaxChecker interface {
	Check(ctx context.Context, source string) ([]string, error)
}

// Stamper signs generated code
type Stamper interface {
	Stamp(code string) models.Provenance
}

// Options configures a Service. Only Gateway is needed to generate code; the
// other collaborators are optional.
type Options struct {
	Gateway llm.Gateway
	SelfMod SelfModifier
	Writer  FileWriter
	Tasks   TaskTracker
	Events  EventPublisher
	Syntax  SyntaxChecker
	Stamper Stamper
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
	Logger  *zap.Logger

	// DefaultModel is used for tasks missing from TaskModels
	DefaultModel string
	TaskModels   map[string]string

	// DetailConcurrency bounds parallel component detail generation
	DetailConcurrency int
}

type pipeline func(ctx context.Context, r *run, req models.GenerationRequest) *models.GenerationResult

// Service orchestrates code generation and modification. It holds no
// per-request state and is safe for concurrent use.
type Service struct {
	opts      Options
	logger    *zap.Logger
	tracer    trace.Tracer
	detail    *DetailGenerator
	generates map[models.Context]pipeline
	modifies  map[models.Context]pipeline
}

// New creates a code service
func New(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("github.com/axiom/ucws/internal/codegen")
	}
	if opts.DetailConcurrency < 1 {
		opts.DetailConcurrency = defaultDetailConcurrency
	}

	s := &Service{
		opts:   opts,
		logger: opts.Logger,
		tracer: opts.Tracer,
	}
	if opts.Gateway != nil {
		s.detail = NewDetailGenerator(opts.Gateway, opts.Logger, opts.Metrics)
	}
	s.generates = map[models.Context]pipeline{
		models.ContextNewTool:              s.newTool,
		models.ContextUnitTestScaffold:     s.unitTestScaffold,
		models.ContextHierarchicalOutline:  s.outlineOnly,
		models.ContextHierarchicalDetails:  s.detailsOnly,
		models.ContextHierarchicalComplete: s.hierarchical,
	}
	s.modifies = map[models.Context]pipeline{
		models.ContextSelfFix:          s.modify,
		models.ContextGranularRefactor: s.modify,
	}
	return s
}

// GenerateCode runs a generation context. It never returns nil and never
// panics on bad input; every failure is a status on the result.
func (s *Service) GenerateCode(ctx context.Context, req models.GenerationRequest) *models.GenerationResult {
	return s.execute(ctx, "GenerateCode", s.generates, models.StatusGenerateUnexpected, req)
}

// ModifyCode runs a modification context (SELF_FIX_TOOL, GRANULAR_CODE_REFACTOR)
func (s *Service) ModifyCode(ctx context.Context, req models.GenerationRequest) *models.GenerationResult {
	return s.execute(ctx, "ModifyCode", s.modifies, models.StatusModifyUnexpected, req)
}

func (s *Service) execute(ctx context.Context, op string, pipelines map[models.Context]pipeline, unexpected models.Status, req models.GenerationRequest) *models.GenerationResult {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "codegen."+op, trace.WithAttributes(
		attribute.String("ucws.context", string(req.Context)),
	))
	defer span.End()

	r := s.begin(ctx, req)
	span.SetAttributes(attribute.String("ucws.task_id", r.taskID))

	res := s.dispatch(ctx, r, pipelines, unexpected, req)

	res.TaskID = r.taskID
	res.Logs = r.snapshot()
	if res.Error != "" {
		span.SetStatus(codes.Error, res.Error)
	}
	span.SetAttributes(attribute.String("ucws.status", string(res.Status)))

	s.end(ctx, r, req, res, time.Since(start))
	return res
}

func (s *Service) dispatch(ctx context.Context, r *run, pipelines map[models.Context]pipeline, unexpected models.Status, req models.GenerationRequest) (res *models.GenerationResult) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("code pipeline panicked",
				zap.String("task_id", r.taskID),
				zap.Any("panic", p),
			)
			res = r.fail(unexpected, fmt.Sprintf("internal error: %v", p))
		}
	}()

	p, ok := pipelines[req.Context]
	if !ok {
		return r.fail(models.StatusUnsupportedContext, fmt.Sprintf("unsupported context %q for this operation", req.Context))
	}
	if s.opts.Gateway == nil {
		return r.fail(models.StatusLLMProviderMissing, "LLM provider not configured")
	}
	if lang := strings.ToLower(strings.TrimSpace(req.Language)); lang != "" && lang != "python" {
		return r.fail(models.StatusUnsupportedLanguage, fmt.Sprintf("language %q is not supported; only python is", req.Language))
	}
	return p(ctx, r, req)
}

// begin allocates the task id and opens the ledger entry
func (s *Service) begin(ctx context.Context, req models.GenerationRequest) *run {
	r := &run{taskID: uuid.NewString(), logger: s.logger}
	r.logf("Starting %s request (task %s)", req.Context, r.taskID)

	if s.opts.Tasks != nil {
		now := time.Now().UTC()
		task := models.Task{
			ID:          r.taskID,
			Type:        models.TaskTypeFor(req.Context),
			Context:     req.Context,
			Description: truncate(req.Payload, 200),
			Status:      models.TaskInitializing,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.opts.Tasks.Begin(ctx, task); err != nil {
			s.logger.Warn("failed to record task", zap.String("task_id", r.taskID), zap.Error(err))
		}
	}
	return r
}

// stage moves the ledger entry to an in-progress status
func (s *Service) stage(ctx context.Context, r *run, status models.TaskStatus, reason string) {
	r.logf("%s", reason)
	if s.opts.Tasks == nil {
		return
	}
	if err := s.opts.Tasks.Update(ctx, r.taskID, status, reason); err != nil {
		s.logger.Warn("failed to update task", zap.String("task_id", r.taskID), zap.Error(err))
	}
}

// end records the outcome everywhere it is observed. Ledger and event writes
// run detached from ctx so a cancelled request is still recorded.
func (s *Service) end(ctx context.Context, r *run, req models.GenerationRequest, res *models.GenerationResult, elapsed time.Duration) {
	fields := []zap.Field{
		zap.String("task_id", r.taskID),
		zap.String("context", string(req.Context)),
		zap.String("status", string(res.Status)),
		zap.Duration("elapsed", elapsed),
	}
	if res.Status.IsSuccess() {
		s.logger.Info("code request finished", fields...)
	} else {
		s.logger.Warn("code request failed", append(fields, zap.String("error", res.Error))...)
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordCodeRequest(string(req.Context), string(res.Status), elapsed)
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if s.opts.Tasks != nil {
		if err := s.opts.Tasks.Finish(bg, r.taskID, res); err != nil {
			s.logger.Warn("failed to finish task", zap.String("task_id", r.taskID), zap.Error(err))
		}
	}
	if s.opts.Events != nil {
		if err := s.opts.Events.PublishResult(bg, req, res); err != nil {
			s.logger.Warn("failed to publish result event", zap.String("task_id", r.taskID), zap.Error(err))
		}
	}
}

// llmConfig resolves model parameters: request overrides, then the task
// model map, then the stage defaults.
func (s *Service) llmConfig(task string, temperature float64, maxTokens int, o *models.LLMOverrides) llm.Config {
	cfg := llm.Config{Model: s.opts.DefaultModel, Temperature: temperature, MaxTokens: maxTokens}
	if m, ok := s.opts.TaskModels[task]; ok && m != "" {
		cfg.Model = m
	}
	if o != nil {
		if o.Model != "" {
			cfg.Model = o.Model
		}
		if o.Temperature != nil {
			cfg.Temperature = *o.Temperature
		}
		if o.MaxTokens != nil && *o.MaxTokens > 0 {
			cfg.MaxTokens = *o.MaxTokens
		}
	}
	return cfg
}

// invoke calls the gateway inside a stage span
func (s *Service) invoke(ctx context.Context, r *run, stage, prompt string, cfg llm.Config) (string, error) {
	ctx, span := s.tracer.Start(ctx, "codegen."+stage)
	defer span.End()

	r.logf("Calling LLM for %s (model %s, temperature %.2f, max tokens %d)", stage, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	out, err := s.opts.Gateway.Invoke(ctx, prompt, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logf("LLM call for %s failed: %v", stage, err)
		return "", err
	}
	r.logf("LLM returned %d characters for %s", len(out), stage)
	return out, nil
}

// cancelled reports whether the request itself (not a single LLM call) was
// cancelled or timed out.
func cancelled(ctx context.Context) bool {
	return ctx.Err() != nil
}

func (s *Service) cancelledResult(ctx context.Context, r *run) *models.GenerationResult {
	err := context.Cause(ctx)
	if err == nil {
		err = errors.New("request cancelled")
	}
	return r.fail(models.StatusCancelled, "request cancelled: "+err.Error())
}

// annotate adds syntax and provenance metadata for final code
func (s *Service) annotate(ctx context.Context, r *run, res *models.GenerationResult) {
	if res.Code == "" {
		return
	}
	if res.Metadata == nil {
		res.Metadata = map[string]interface{}{}
	}
	if s.opts.Syntax != nil {
		problems, err := s.opts.Syntax.Check(ctx, res.Code)
		switch {
		case err != nil:
			s.logger.Debug("syntax check unavailable", zap.Error(err))
		default:
			res.Metadata["syntax_valid"] = len(problems) == 0
			if len(problems) > 0 {
				res.Metadata["syntax_errors"] = problems
				r.logf("Syntax check reported %d problem(s)", len(problems))
			}
		}
	}
	if s.opts.Stamper != nil {
		res.Metadata["provenance"] = s.opts.Stamper.Stamp(res.Code)
	}
}

// persist writes saveable results to req.TargetPath. A failed write keeps the
// code and degrades the status to failStatus.
func (s *Service) persist(ctx context.Context, r *run, req models.GenerationRequest, res *models.GenerationResult, failStatus models.Status) *models.GenerationResult {
	if req.TargetPath == "" || !req.Context.Saveable() {
		return res
	}
	if cancelled(ctx) {
		return s.cancelledResult(ctx, r)
	}
	if s.opts.Writer == nil {
		res.Status = failStatus
		res.Error = "no file writer configured"
		r.logf("Cannot save to %s: no file writer configured", req.TargetPath)
		return res
	}

	s.stage(ctx, r, models.TaskApplyingChanges, "Saving code to "+req.TargetPath)
	path, err := s.opts.Writer.WriteToFile(ctx, req.TargetPath, res.Code)
	if err != nil {
		res.Status = failStatus
		res.Error = fmt.Sprintf("failed to save code to %s: %v", req.TargetPath, err)
		r.logf("%s", res.Error)
		return res
	}
	res.SavedToPath = path
	r.logf("Saved code to %s", path)
	return res
}

// run is the request-scoped state of one call
type run struct {
	taskID string
	logger *zap.Logger

	mu   sync.Mutex
	logs []string
}

func (r *run) logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.mu.Lock()
	r.logs = append(r.logs, msg)
	r.mu.Unlock()
	r.logger.Debug(msg, zap.String("task_id", r.taskID))
}

func (r *run) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.logs))
	copy(out, r.logs)
	return out
}

func (r *run) fail(status models.Status, msg string) *models.GenerationResult {
	r.logf("%s: %s", status, msg)
	return &models.GenerationResult{Status: status, Error: msg}
}

func truncate(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}
