package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/orchestration"
	"github.com/axiom/ucws/internal/tasks"
	"github.com/axiom/ucws/internal/usage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubService struct {
	mu       sync.Mutex
	requests []models.GenerationRequest
	result   func(ctx context.Context, req models.GenerationRequest) *models.GenerationResult
}

func (s *stubService) handle(ctx context.Context, req models.GenerationRequest) *models.GenerationResult {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.result != nil {
		return s.result(ctx, req)
	}
	return &models.GenerationResult{TaskID: "t-1", Status: models.StatusSuccess, Code: "def f():\n    pass\n"}
}

func (s *stubService) GenerateCode(ctx context.Context, req models.GenerationRequest) *models.GenerationResult {
	return s.handle(ctx, req)
}

func (s *stubService) ModifyCode(ctx context.Context, req models.GenerationRequest) *models.GenerationResult {
	return s.handle(ctx, req)
}

type stubJobs struct {
	started []models.Operation
	status  map[string]*models.CodeJobStatus
	err     error
}

func (s *stubJobs) Start(_ context.Context, op models.Operation, _ models.GenerationRequest) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.started = append(s.started, op)
	return "ucws-job-1", nil
}

func (s *stubJobs) Status(_ context.Context, id string) (*models.CodeJobStatus, error) {
	if st, ok := s.status[id]; ok {
		return st, nil
	}
	return nil, orchestration.ErrJobNotFound
}

func (s *stubJobs) Cancel(_ context.Context, id string) error {
	if _, ok := s.status[id]; ok {
		return nil
	}
	return orchestration.ErrJobNotFound
}

func newCodeRouter(t *testing.T, svc CodeService, jobs JobRunner, timeout time.Duration) *gin.Engine {
	t.Helper()
	logger := zaptest.NewLogger(t)
	code := NewCodeHandler(svc, timeout, logger)

	r := gin.New()
	api := r.Group("/api/v1")
	api.POST("/code/generate", code.Generate)
	api.POST("/code/modify", code.Modify)

	jh := NewJobHandler(jobs, logger)
	api.POST("/code/jobs", jh.Start)
	api.GET("/code/jobs/:id", jh.Status)
	api.POST("/code/jobs/:id/cancel", jh.Cancel)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestCodeHandler_Generate(t *testing.T) {
	svc := &stubService{}
	r := newCodeRouter(t, svc, nil, time.Minute)

	w := post(r, "/api/v1/code/generate", `{
		"context": "HIERARCHICAL_GEN_COMPLETE_TOOL",
		"request_payload": "a tool that adds numbers",
		"target_path": "tools/adder.py",
		"llm_config_overrides": {"model": "m", "temperature": 0.5},
		"additional_context": {"outline_json": "{}"}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res models.GenerationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "t-1", res.TaskID)

	require.Len(t, svc.requests, 1)
	req := svc.requests[0]
	assert.Equal(t, models.ContextHierarchicalComplete, req.Context)
	assert.Equal(t, "tools/adder.py", req.TargetPath)
	require.NotNil(t, req.LLMOverrides)
	assert.Equal(t, "m", req.LLMOverrides.Model)
	assert.InDelta(t, 0.5, *req.LLMOverrides.Temperature, 1e-9)
	assert.Equal(t, "{}", req.AdditionalContext["outline_json"])
}

func TestCodeHandler_RequestPayloadField(t *testing.T) {
	svc := &stubService{}
	r := newCodeRouter(t, svc, nil, 0)

	w := post(r, "/api/v1/code/generate", `{"context":"HIERARCHICAL_GEN_COMPLETE_TOOL","request_payload":"a todo manager"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, svc.requests, 1)
	assert.Equal(t, "a todo manager", svc.requests[0].Payload)

	// the description travels only under request_payload
	w = post(r, "/api/v1/code/generate", `{"context":"NEW_TOOL","payload":"a todo manager"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, svc.requests, 1)
}

func TestCodeHandler_RejectsBadRequests(t *testing.T) {
	svc := &stubService{}
	r := newCodeRouter(t, svc, nil, 0)

	tests := map[string]struct {
		path, body string
	}{
		"malformed json":          {"/api/v1/code/generate", `{"context":`},
		"missing payload":         {"/api/v1/code/generate", `{"context":"NEW_TOOL"}`},
		"unknown context":         {"/api/v1/code/generate", `{"context":"WRITE_NOVEL","request_payload":"x"}`},
		"modify context on gen":   {"/api/v1/code/generate", `{"context":"SELF_FIX_TOOL","request_payload":"x"}`},
		"generate context on mod": {"/api/v1/code/modify", `{"context":"NEW_TOOL","request_payload":"x"}`},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := post(r, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "BAD_REQUEST")
		})
	}
	assert.Empty(t, svc.requests)
}

func TestCodeHandler_Modify(t *testing.T) {
	svc := &stubService{result: func(_ context.Context, req models.GenerationRequest) *models.GenerationResult {
		return &models.GenerationResult{Status: models.StatusLLMNoSuggestion, Error: "no suggestion"}
	}}
	r := newCodeRouter(t, svc, nil, 0)

	w := post(r, "/api/v1/code/modify", `{
		"context": "SELF_FIX_TOOL",
		"request_payload": "fix the off by one",
		"module_path": "tools.calc",
		"function_name": "add",
		"apply_changes": true
	}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ERROR_LLM_NO_SUGGESTION"`)

	require.Len(t, svc.requests, 1)
	assert.True(t, svc.requests[0].ApplyChanges)
	assert.Equal(t, "tools.calc", svc.requests[0].ModulePath)
}

func TestCodeHandler_StatusCodes(t *testing.T) {
	svc := &stubService{result: func(ctx context.Context, _ models.GenerationRequest) *models.GenerationResult {
		<-ctx.Done()
		return &models.GenerationResult{Status: models.StatusCancelled, Error: ctx.Err().Error()}
	}}
	r := newCodeRouter(t, svc, nil, 10*time.Millisecond)

	w := post(r, "/api/v1/code/generate", `{"context":"NEW_TOOL","request_payload":"x"}`)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "ERROR_CANCELLED")

	svc.result = func(context.Context, models.GenerationRequest) *models.GenerationResult {
		return &models.GenerationResult{Status: models.StatusLLMProviderMissing}
	}
	w = post(r, "/api/v1/code/generate", `{"context":"NEW_TOOL","request_payload":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestJobHandler(t *testing.T) {
	jobs := &stubJobs{status: map[string]*models.CodeJobStatus{
		"done": {JobID: "done", State: orchestration.JobCompleted, Result: &models.GenerationResult{Status: models.StatusSuccess}},
	}}
	r := newCodeRouter(t, &stubService{}, jobs, 0)

	w := post(r, "/api/v1/code/jobs", `{"context":"GRANULAR_CODE_REFACTOR","request_payload":"rename x","existing_code":"x = 1"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"job_id":"ucws-job-1"`)
	assert.Equal(t, []models.Operation{models.OperationModify}, jobs.started)

	w = get(r, "/api/v1/code/jobs/done")
	require.Equal(t, http.StatusOK, w.Code)
	var st models.CodeJobStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, orchestration.JobCompleted, st.State)
	require.NotNil(t, st.Result)
	assert.Equal(t, models.StatusSuccess, st.Result.Status)

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/code/jobs/missing").Code)
	assert.Equal(t, http.StatusAccepted, post(r, "/api/v1/code/jobs/done/cancel", "").Code)
	assert.Equal(t, http.StatusNotFound, post(r, "/api/v1/code/jobs/missing/cancel", "").Code)
}

func TestJobHandler_Unavailable(t *testing.T) {
	r := newCodeRouter(t, &stubService{}, nil, 0)
	w := post(r, "/api/v1/code/jobs", `{"context":"NEW_TOOL","request_payload":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "JOBS_UNAVAILABLE")
}

func TestJobHandler_StartFailure(t *testing.T) {
	r := newCodeRouter(t, &stubService{}, &stubJobs{err: errors.New("temporal down")}, 0)
	w := post(r, "/api/v1/code/jobs", `{"context":"NEW_TOOL","request_payload":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type stubUsage struct{ window time.Duration }

func (s *stubUsage) Summary(_ context.Context, window time.Duration) ([]usage.ModelUsage, error) {
	s.window = window
	return []usage.ModelUsage{{Gateway: "ollama", Model: "qwen3:8B", Calls: 3}}, nil
}

func TestTaskHandler(t *testing.T) {
	store := tasks.NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, store.Save(ctx, models.Task{ID: "a", Context: models.ContextNewTool, Status: models.TaskCompleted, CreatedAt: now.Add(-time.Minute)}))
	require.NoError(t, store.Save(ctx, models.Task{ID: "b", Context: models.ContextSelfFix, Status: models.TaskFailedCodeGeneration, CreatedAt: now}))

	u := &stubUsage{}
	h := NewTaskHandler(store, u, zaptest.NewLogger(t))
	r := gin.New()
	r.GET("/tasks", h.List)
	r.GET("/tasks/:id", h.Get)
	r.GET("/usage", h.Usage)

	w := get(r, "/tasks?limit=1")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Tasks []models.Task `json:"tasks"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "b", list.Tasks[0].ID)

	assert.Equal(t, http.StatusBadRequest, get(r, "/tasks?limit=zero").Code)
	assert.Equal(t, http.StatusOK, get(r, "/tasks/a").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/tasks/zzz").Code)

	w = get(r, "/usage?window=2h")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2*time.Hour, u.window)
	assert.Contains(t, w.Body.String(), `"model":"qwen3:8B"`)
	assert.Equal(t, http.StatusBadRequest, get(r, "/usage?window=-1h").Code)
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler("1.2.3", map[string]Pinger{
		"database": PingFunc(func(context.Context) error { return nil }),
		"redis":    nil,
		"llm":      PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	})
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/health/deep", h.DeepHealth)

	w := get(r, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"1.2.3"`)

	w = get(r, "/health/deep")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "healthy", body.Dependencies["database"])
	assert.Equal(t, "not configured", body.Dependencies["redis"])
	assert.Equal(t, "unhealthy: connection refused", body.Dependencies["llm"])
}
