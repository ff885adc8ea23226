package codegen

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/axiom/ucws/internal/assembler"
	"github.com/axiom/ucws/internal/llm"
	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/prompts"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	outlineMarker = "JSON Outline:"

	addOutline = `{"module_name": "calc", "module_docstring": "Simple math helpers.", "imports": [],
  "components": [{"type": "function", "name": "add", "signature": "(a, b)",
    "description": "Add two numbers.", "body_placeholder": "# return the sum"}]}`

	stackOutline = "```json\n" + `{"module_name": "stack", "module_docstring": "A tiny stack.", "imports": ["typing"],
  "components": [
    {"type": "class", "name": "Stack", "description": "LIFO container.",
     "attributes": [{"name": "items", "type": "list", "description": "stored values"}],
     "methods": [
       {"name": "__init__", "signature": "(self)", "description": "Create an empty stack."},
       {"name": "push", "signature": "(self, item)", "description": "Push an item."}
     ]},
    {"type": "function", "name": "helper", "signature": "()", "description": "Help."}
  ]}` + "\n```"

	addCode = "def add(a, b):\n    return a + b"
)

func detailFor(name string) string {
	return "- Name: " + name + "\n"
}

func hierarchicalRequest() models.GenerationRequest {
	return models.GenerationRequest{
		Context:  models.ContextHierarchicalComplete,
		Payload:  "a module that adds numbers",
		Language: "python",
	}
}

func newTestService(t *testing.T, gw llm.Gateway, mutate func(*Options)) *Service {
	t.Helper()
	opts := Options{
		Gateway:      gw,
		Logger:       zaptest.NewLogger(t),
		DefaultModel: "qwen3:8B",
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

// Scenario A
func TestGenerateCode_HierarchicalComplete(t *testing.T) {
	gw := llm.NewFakeGateway().
		On(outlineMarker, addOutline).
		On(detailFor("add"), "```python\n"+addCode+"\n```")
	svc := newTestService(t, gw, nil)

	res := svc.GenerateCode(context.Background(), hierarchicalRequest())

	require.Equal(t, models.StatusHierarchicalAssembled, res.Status, res.Error)
	assert.Contains(t, res.Code, addCode)
	assert.NotContains(t, res.Code, assembler.PlaceholderBody)
	assert.True(t, strings.HasPrefix(res.Code, `"""Simple math helpers."""`))
	require.NotNil(t, res.Outline)
	assert.Equal(t, "calc", res.Outline.ModuleName)
	require.Contains(t, res.ComponentResults, "add")
	assert.Equal(t, addCode, *res.ComponentResults["add"])
	assert.NotEmpty(t, res.TaskID)
	assert.NotEmpty(t, res.Logs)
	assert.Len(t, gw.Calls(), 2)
}

// Scenario B
func TestGenerateCode_PartialAssembly(t *testing.T) {
	gw := llm.NewFakeGateway().
		On(outlineMarker, addOutline).
		OnError(detailFor("add"), errors.New("model overloaded"))
	svc := newTestService(t, gw, nil)

	res := svc.GenerateCode(context.Background(), hierarchicalRequest())

	require.Equal(t, models.StatusPartialAssembled, res.Status)
	assert.Contains(t, res.Code, "def add(a, b):")
	assert.Contains(t, res.Code, assembler.PlaceholderBody)
	assert.Contains(t, res.Error, "add")
	assert.Nil(t, res.ComponentResults["add"])
	assert.True(t, res.Status.IsSuccess())
}

// Scenario C
func TestGenerateCode_TruncatedOutline(t *testing.T) {
	gw := llm.NewFakeGateway().
		On(outlineMarker, `{"module_name": "calc", "components": [{"type": "func`)
	svc := newTestService(t, gw, nil)

	res := svc.GenerateCode(context.Background(), hierarchicalRequest())

	assert.Equal(t, models.StatusOutlineParsing, res.Status)
	assert.Empty(t, res.Code)
	assert.NotEmpty(t, res.Error)
	assert.Len(t, gw.Calls(), 1)
}

func TestGenerateCode_OutlineFailures(t *testing.T) {
	t.Run("gateway error", func(t *testing.T) {
		gw := llm.NewFakeGateway().OnError(outlineMarker, errors.New("boom"))
		res := newTestService(t, gw, nil).GenerateCode(context.Background(), hierarchicalRequest())
		assert.Equal(t, models.StatusOutlineFailed, res.Status)
	})
	t.Run("blank outline", func(t *testing.T) {
		gw := llm.NewFakeGateway().On(outlineMarker, "   ")
		res := newTestService(t, gw, nil).GenerateCode(context.Background(), hierarchicalRequest())
		assert.Equal(t, models.StatusOutlineFailed, res.Status)
	})
	t.Run("empty components", func(t *testing.T) {
		gw := llm.NewFakeGateway().On(outlineMarker, `{"module_name": "x", "components": []}`)
		res := newTestService(t, gw, nil).GenerateCode(context.Background(), hierarchicalRequest())
		assert.Equal(t, models.StatusOutlineParsing, res.Status)
	})
}

func TestGenerateCode_ClassOutlineUsesMethodKeys(t *testing.T) {
	gw := llm.NewFakeGateway().
		On(outlineMarker, stackOutline).
		On(detailFor("__init__"), "def __init__(self):\n    self.items = []").
		On(detailFor("push"), "def push(self, item):\n    self.items.append(item)").
		On(detailFor("helper"), "def helper():\n    return None")
	svc := newTestService(t, gw, func(o *Options) { o.DetailConcurrency = 2 })

	res := svc.GenerateCode(context.Background(), hierarchicalRequest())

	require.Equal(t, models.StatusHierarchicalAssembled, res.Status, res.Error)
	assert.ElementsMatch(t, []string{"Stack.__init__", "Stack.push", "helper"}, keysOf(res.ComponentResults))
	assert.Contains(t, res.Code, "import typing")
	assert.Contains(t, res.Code, "class Stack:")
	assert.Contains(t, res.Code, "    def push(self, item):\n        self.items.append(item)")
	assert.Less(t, strings.Index(res.Code, "class Stack:"), strings.Index(res.Code, "def helper():"))

	var methodPrompt string
	for _, c := range gw.Calls() {
		if strings.Contains(c.Prompt, detailFor("push")) {
			methodPrompt = c.Prompt
			assert.Equal(t, detailTemperature, c.Config.Temperature)
			assert.Equal(t, detailMaxTokens, c.Config.MaxTokens)
		}
	}
	assert.Contains(t, methodPrompt, "Within class 'Stack' with attributes (items: list)")
	assert.Contains(t, methodPrompt, "- Type: method")
}

func TestGenerateCode_DetailRejectsSentinelAndShortOutput(t *testing.T) {
	gw := llm.NewFakeGateway().
		On(outlineMarker, stackOutline).
		On(detailFor("__init__"), prompts.SentinelImplementationErr+" Ambiguous instruction or impossible task.").
		On(detailFor("push"), "x").
		On(detailFor("helper"), "def helper():\n    return None")
	svc := newTestService(t, gw, nil)

	res := svc.GenerateCode(context.Background(), hierarchicalRequest())

	require.Equal(t, models.StatusPartialAssembled, res.Status)
	assert.Nil(t, res.ComponentResults["Stack.__init__"])
	assert.Nil(t, res.ComponentResults["Stack.push"])
	require.NotNil(t, res.ComponentResults["helper"])
	assert.Contains(t, res.Code, "    # items: list")
}

func TestGenerateCode_DetailsOnlyStatuses(t *testing.T) {
	req := hierarchicalRequest()
	req.Context = models.ContextHierarchicalDetails

	tests := []struct {
		name   string
		gw     *llm.FakeGateway
		status models.Status
	}{
		{
			name: "all generated",
			gw: llm.NewFakeGateway().On(outlineMarker, stackOutline).
				Default(func(string) (string, error) { return "def generated():\n    return 1", nil }),
			status: models.StatusDetailsGenerated,
		},
		{
			name: "some generated",
			gw: llm.NewFakeGateway().On(outlineMarker, stackOutline).
				OnError(detailFor("push"), errors.New("nope")).
				Default(func(string) (string, error) { return "def generated():\n    return 1", nil }),
			status: models.StatusPartialDetailsGenerated,
		},
		{
			name:   "none generated",
			gw:     llm.NewFakeGateway().On(outlineMarker, stackOutline),
			status: models.StatusDetailGenerationFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestService(t, tt.gw, nil).GenerateCode(context.Background(), req)
			assert.Equal(t, tt.status, res.Status)
			assert.Empty(t, res.Code)
			assert.NotNil(t, res.Outline)
			assert.Len(t, res.ComponentResults, 3)
		})
	}
}

func TestGenerateCode_OutlineOnly(t *testing.T) {
	gw := llm.NewFakeGateway().On(outlineMarker, addOutline)
	req := hierarchicalRequest()
	req.Context = models.ContextHierarchicalOutline

	res := newTestService(t, gw, nil).GenerateCode(context.Background(), req)

	assert.Equal(t, models.StatusOutlineGenerated, res.Status)
	require.NotNil(t, res.Outline)
	assert.Equal(t, "add", res.Outline.Components[0].Name)
	assert.Len(t, gw.Calls(), 1)
}

func TestGenerateCode_NewTool(t *testing.T) {
	req := models.GenerationRequest{Context: models.ContextNewTool, Payload: "compute a circle's area"}

	t.Run("with metadata", func(t *testing.T) {
		gw := llm.NewFakeGateway().Default(func(string) (string, error) {
			return `# METADATA: {"suggested_function_name": "circle_area", "suggested_tool_name": "circleArea", "suggested_description": "Area of a circle."}` +
				"\ndef circle_area(r: float) -> float:\n    return 3.14159 * r * r\n", nil
		})
		res := newTestService(t, gw, nil).GenerateCode(context.Background(), req)

		require.Equal(t, models.StatusSuccess, res.Status, res.Error)
		assert.True(t, strings.HasPrefix(res.Code, "def circle_area"))
		assert.Equal(t, "circleArea", res.Metadata["suggested_tool_name"])
		assert.Equal(t, generateTemperature, gw.Calls()[0].Config.Temperature)
		assert.Equal(t, generateMaxTokens, gw.Calls()[0].Config.MaxTokens)
	})

	t.Run("without metadata", func(t *testing.T) {
		gw := llm.NewFakeGateway().Default(func(string) (string, error) {
			return "def circle_area(r):\n    return 3.14159 * r * r", nil
		})
		res := newTestService(t, gw, nil).GenerateCode(context.Background(), req)

		assert.Equal(t, models.StatusMetadataParsing, res.Status)
		assert.Contains(t, res.Code, "def circle_area")
	})

	t.Run("gateway error", func(t *testing.T) {
		gw := llm.NewFakeGateway().Default(func(string) (string, error) { return "", errors.New("down") })
		res := newTestService(t, gw, nil).GenerateCode(context.Background(), req)
		assert.Equal(t, models.StatusLLMNoOutput, res.Status)
	})
}

func TestGenerateCode_UnitTestScaffold(t *testing.T) {
	gw := llm.NewFakeGateway().Default(func(string) (string, error) {
		return "```python\nimport unittest\n\nclass TestAdd(unittest.TestCase):\n    pass\n```", nil
	})
	req := models.GenerationRequest{
		Context:           models.ContextUnitTestScaffold,
		Payload:           addCode,
		AdditionalContext: map[string]interface{}{"module_name_hint": "calc"},
	}

	res := newTestService(t, gw, nil).GenerateCode(context.Background(), req)

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.True(t, strings.HasPrefix(res.Code, "import unittest"))
	assert.Contains(t, gw.Calls()[0].Prompt, "imported as 'calc'")
}

func TestGenerateCode_Persistence(t *testing.T) {
	gw := func() *llm.FakeGateway {
		return llm.NewFakeGateway().On(outlineMarker, addOutline).On(detailFor("add"), addCode)
	}
	req := hierarchicalRequest()
	req.TargetPath = "generated/calc.py"

	t.Run("saved", func(t *testing.T) {
		w := &fakeWriter{}
		res := newTestService(t, gw(), func(o *Options) { o.Writer = w }).GenerateCode(context.Background(), req)

		require.Equal(t, models.StatusHierarchicalAssembled, res.Status)
		assert.Equal(t, "/out/generated/calc.py", res.SavedToPath)
		require.Len(t, w.writes, 1)
		assert.Equal(t, res.Code, w.writes["generated/calc.py"])
	})

	t.Run("write fails", func(t *testing.T) {
		w := &fakeWriter{err: errors.New("disk full")}
		res := newTestService(t, gw(), func(o *Options) { o.Writer = w }).GenerateCode(context.Background(), req)

		assert.Equal(t, models.StatusSavingAssembledCode, res.Status)
		assert.Contains(t, res.Code, addCode)
		assert.Contains(t, res.Error, "disk full")
		assert.Empty(t, res.SavedToPath)
	})

	t.Run("no writer", func(t *testing.T) {
		res := newTestService(t, gw(), nil).GenerateCode(context.Background(), req)
		assert.Equal(t, models.StatusSavingAssembledCode, res.Status)
		assert.NotEmpty(t, res.Code)
	})
}

func TestGenerateCode_CancelledBeforeWrite(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw := llm.NewFakeGateway().
		OnFunc(outlineMarker, func(context.Context, string) (string, error) {
			cancel()
			return addOutline, nil
		}).
		On(detailFor("add"), addCode)
	w := &fakeWriter{}
	req := hierarchicalRequest()
	req.TargetPath = "calc.py"

	res := newTestService(t, gw, func(o *Options) { o.Writer = w }).GenerateCode(ctx, req)

	assert.Equal(t, models.StatusCancelled, res.Status)
	assert.Empty(t, res.Code)
	assert.Empty(t, w.writes)
}

func TestGenerateCode_Preconditions(t *testing.T) {
	gw := llm.NewFakeGateway()

	t.Run("modify context", func(t *testing.T) {
		res := newTestService(t, gw, nil).GenerateCode(context.Background(), models.GenerationRequest{Context: models.ContextSelfFix})
		assert.Equal(t, models.StatusUnsupportedContext, res.Status)
	})
	t.Run("unknown context", func(t *testing.T) {
		res := newTestService(t, gw, nil).GenerateCode(context.Background(), models.GenerationRequest{Context: "MAKE_COFFEE"})
		assert.Equal(t, models.StatusUnsupportedContext, res.Status)
	})
	t.Run("no provider", func(t *testing.T) {
		res := New(Options{}).GenerateCode(context.Background(), hierarchicalRequest())
		assert.Equal(t, models.StatusLLMProviderMissing, res.Status)
	})
	t.Run("language", func(t *testing.T) {
		req := hierarchicalRequest()
		req.Language = "rust"
		res := newTestService(t, gw, nil).GenerateCode(context.Background(), req)
		assert.Equal(t, models.StatusUnsupportedLanguage, res.Status)
	})
	assert.Empty(t, gw.Calls())
}

func TestGenerateCode_PanicBecomesUnexpected(t *testing.T) {
	gw := llm.NewFakeGateway().OnFunc(outlineMarker, func(context.Context, string) (string, error) {
		panic("gateway bug")
	})

	res := newTestService(t, gw, nil).GenerateCode(context.Background(), hierarchicalRequest())

	assert.Equal(t, models.StatusGenerateUnexpected, res.Status)
	assert.Contains(t, res.Error, "gateway bug")
}

func TestGenerateCode_ModelSelection(t *testing.T) {
	temp := 0.9
	maxTokens := 99
	gw := llm.NewFakeGateway().On(outlineMarker, addOutline).On(detailFor("add"), addCode)
	svc := newTestService(t, gw, func(o *Options) {
		o.TaskModels = map[string]string{TaskCodeOutline: "planner", TaskCodeDetail: "coder"}
	})

	req := hierarchicalRequest()
	svc.GenerateCode(context.Background(), req)
	calls := gw.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "planner", calls[0].Config.Model)
	assert.Equal(t, generateTemperature, calls[0].Config.Temperature)
	assert.Equal(t, "coder", calls[1].Config.Model)

	req.LLMOverrides = &models.LLMOverrides{Model: "override", Temperature: &temp, MaxTokens: &maxTokens}
	svc.GenerateCode(context.Background(), req)
	calls = gw.Calls()[2:]
	for _, c := range calls {
		assert.Equal(t, llm.Config{Model: "override", Temperature: 0.9, MaxTokens: 99}, c.Config)
	}
}

func TestGenerateCode_AnnotatesAndRecords(t *testing.T) {
	gw := llm.NewFakeGateway().On(outlineMarker, addOutline).On(detailFor("add"), addCode)
	tracker := &recordingTracker{}
	events := &recordingEvents{}
	svc := newTestService(t, gw, func(o *Options) {
		o.Tasks = tracker
		o.Events = events
		o.Syntax = stubChecker{problems: []string{"line 3: unexpected indent"}}
		o.Stamper = stubStamper{}
	})

	res := svc.GenerateCode(context.Background(), hierarchicalRequest())

	require.Equal(t, models.StatusHierarchicalAssembled, res.Status)
	assert.Equal(t, false, res.Metadata["syntax_valid"])
	assert.Equal(t, []string{"line 3: unexpected indent"}, res.Metadata["syntax_errors"])
	assert.Equal(t, models.Provenance{Algorithm: "test", CodeHash: "hash"}, res.Metadata["provenance"])

	require.Len(t, tracker.begun, 1)
	assert.Equal(t, res.TaskID, tracker.begun[0].ID)
	assert.Equal(t, models.TaskToolCreation, tracker.begun[0].Type)
	assert.Contains(t, tracker.updates, models.TaskPlanningCode)
	assert.Contains(t, tracker.updates, models.TaskGeneratingCode)
	require.Len(t, tracker.finished, 1)
	assert.Same(t, res, tracker.finished[0])

	require.Len(t, events.published, 1)
	assert.Same(t, res, events.published[0])
}

// Scenario D
func TestModifyCode_MissingFunction(t *testing.T) {
	gw := llm.NewFakeGateway()
	sm := newFakeSelfMod()
	svc := newTestService(t, gw, func(o *Options) { o.SelfMod = sm })

	res := svc.ModifyCode(context.Background(), models.GenerationRequest{
		Context:      models.ContextSelfFix,
		Payload:      "fix the off-by-one",
		ModulePath:   "tools.math_utils",
		FunctionName: "does_not_exist",
	})

	assert.Equal(t, models.StatusNoOriginalCode, res.Status)
	assert.Empty(t, res.Code)
	assert.Empty(t, gw.Calls())
}

func TestModifyCode_SelfFix(t *testing.T) {
	original := "def add(a, b):\n    return a - b\n"
	gw := llm.NewFakeGateway().Default(func(string) (string, error) { return "```python\n" + addCode + "\n```", nil })
	sm := newFakeSelfMod()
	sm.sources["tools.calc:add"] = original
	svc := newTestService(t, gw, func(o *Options) { o.SelfMod = sm })

	req := models.GenerationRequest{
		Context:      models.ContextSelfFix,
		Payload:      "add subtracts instead of adding",
		ModulePath:   "tools.calc",
		FunctionName: "add",
	}
	res := svc.ModifyCode(context.Background(), req)

	require.Equal(t, models.StatusSuccess, res.Status, res.Error)
	assert.Equal(t, addCode, res.Code)
	assert.Contains(t, res.Diff, "--- a/add\n+++ b/add\n")
	assert.Contains(t, res.Diff, "-    return a - b\n")
	assert.Contains(t, res.Diff, "+    return a + b\n")
	assert.Empty(t, sm.edits)

	call := gw.Calls()[0]
	assert.Contains(t, call.Prompt, original)
	assert.Contains(t, call.Prompt, prompts.SentinelNoCodeSuggestion)
	assert.Equal(t, modifyTemperature, call.Config.Temperature)

	t.Run("apply", func(t *testing.T) {
		req.ApplyChanges = true
		res := svc.ModifyCode(context.Background(), req)
		require.Equal(t, models.StatusSuccess, res.Status)
		assert.Equal(t, true, res.Metadata["applied"])
		assert.Equal(t, addCode, sm.edits["tools.calc:add"])
	})

	t.Run("apply fails", func(t *testing.T) {
		sm.editErr = errors.New("read-only file system")
		req.ApplyChanges = true
		res := svc.ModifyCode(context.Background(), req)
		assert.Equal(t, models.StatusApplyingChange, res.Status)
		assert.Equal(t, addCode, res.Code)
		assert.NotEmpty(t, res.Diff)
	})
}

func TestModifyCode_ExistingCodeNeedsNoLocation(t *testing.T) {
	existing := "def add(a, b):\n    return a - b"
	gw := llm.NewFakeGateway().Default(func(string) (string, error) { return addCode, nil })

	res := newTestService(t, gw, nil).ModifyCode(context.Background(), models.GenerationRequest{
		Context:      models.ContextSelfFix,
		Payload:      "fix it",
		ExistingCode: &existing,
	})

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Contains(t, res.Diff, "--- a/code\n")
}

func TestModifyCode_Failures(t *testing.T) {
	existing := "def add(a, b):\n    return a - b"

	tests := []struct {
		name   string
		req    models.GenerationRequest
		reply  string
		status models.Status
	}{
		{
			name:   "missing location",
			req:    models.GenerationRequest{Context: models.ContextSelfFix, Payload: "fix"},
			status: models.StatusMissingDetails,
		},
		{
			name:   "no self-mod backend",
			req:    models.GenerationRequest{Context: models.ContextSelfFix, ModulePath: "m", FunctionName: "f"},
			status: models.StatusSelfModServiceMissing,
		},
		{
			name:   "empty existing code",
			req:    models.GenerationRequest{Context: models.ContextSelfFix, ExistingCode: new(string)},
			status: models.StatusNoOriginalCode,
		},
		{
			name:   "no suggestion sentinel",
			req:    models.GenerationRequest{Context: models.ContextSelfFix, ExistingCode: &existing},
			reply:  prompts.SentinelNoCodeSuggestion,
			status: models.StatusLLMNoSuggestion,
		},
		{
			name:   "implausibly short",
			req:    models.GenerationRequest{Context: models.ContextSelfFix, ExistingCode: &existing},
			reply:  "ok",
			status: models.StatusLLMNoSuggestion,
		},
		{
			name:   "refactor without section",
			req:    models.GenerationRequest{Context: models.ContextGranularRefactor, ExistingCode: &existing},
			status: models.StatusMissingSectionIdentifier,
		},
		{
			name: "refactor impossible",
			req: models.GenerationRequest{
				Context:           models.ContextGranularRefactor,
				ExistingCode:      &existing,
				AdditionalContext: map[string]interface{}{"section_identifier": "return a - b"},
			},
			reply:  prompts.SentinelRefactorImpossible,
			status: models.StatusLLMNoSuggestion,
		},
		{
			name:   "generate context",
			req:    models.GenerationRequest{Context: models.ContextNewTool},
			status: models.StatusUnsupportedContext,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := llm.NewFakeGateway().Default(func(string) (string, error) { return tt.reply, nil })
			res := newTestService(t, gw, nil).ModifyCode(context.Background(), tt.req)
			assert.Equal(t, tt.status, res.Status)
			assert.Empty(t, res.Code)
		})
	}
}

func TestModifyCode_GranularRefactor(t *testing.T) {
	existing := "def total(xs):\n    t = 0\n    for x in xs:\n        t += x\n    return t"
	refactored := "def total(xs):\n    return sum(xs)"
	gw := llm.NewFakeGateway().Default(func(string) (string, error) { return refactored, nil })

	res := newTestService(t, gw, nil).ModifyCode(context.Background(), models.GenerationRequest{
		Context:           models.ContextGranularRefactor,
		Payload:           "use sum()",
		ExistingCode:      &existing,
		FunctionName:      "total",
		AdditionalContext: map[string]interface{}{"section_identifier": "for x in xs:"},
	})

	require.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, refactored, res.Code)
	prompt := gw.Calls()[0].Prompt
	assert.Contains(t, prompt, "for x in xs:")
	assert.Contains(t, prompt, prompts.SentinelRefactorImpossible)
}

func TestService_ConcurrentRequests(t *testing.T) {
	gw := llm.NewFakeGateway().
		On(outlineMarker, stackOutline).
		Default(func(string) (string, error) { return "def generated():\n    return 1", nil })
	svc := newTestService(t, gw, nil)

	var wg sync.WaitGroup
	results := make([]*models.GenerationResult, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = svc.GenerateCode(context.Background(), hierarchicalRequest())
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, res := range results {
		require.Equal(t, models.StatusHierarchicalAssembled, res.Status)
		assert.Equal(t, results[0].Code, res.Code)
		seen[res.TaskID] = true
	}
	assert.Len(t, seen, len(results))
}

func keysOf(m models.ComponentResults) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

type fakeSelfMod struct {
	mu      sync.Mutex
	sources map[string]string
	edits   map[string]string
	editErr error
}

func newFakeSelfMod() *fakeSelfMod {
	return &fakeSelfMod{sources: map[string]string{}, edits: map[string]string{}}
}

func (f *fakeSelfMod) ReadFunctionSource(_ context.Context, module, fn string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.sources[module+":"+fn]
	if !ok {
		return "", errors.New("function not found")
	}
	return src, nil
}

func (f *fakeSelfMod) EditFunctionSource(_ context.Context, module, fn, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits[module+":"+fn] = code
	return nil
}

type fakeWriter struct {
	writes map[string]string
	err    error
}

func (f *fakeWriter) WriteToFile(_ context.Context, path, content string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.writes == nil {
		f.writes = map[string]string{}
	}
	f.writes[path] = content
	return "/out/" + path, nil
}

type recordingTracker struct {
	mu       sync.Mutex
	begun    []models.Task
	updates  []models.TaskStatus
	finished []*models.GenerationResult
}

func (r *recordingTracker) Begin(_ context.Context, task models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begun = append(r.begun, task)
	return nil
}

func (r *recordingTracker) Update(_ context.Context, _ string, status models.TaskStatus, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, status)
	return nil
}

func (r *recordingTracker) Finish(_ context.Context, _ string, res *models.GenerationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, res)
	return nil
}

type recordingEvents struct {
	published []*models.GenerationResult
}

func (r *recordingEvents) PublishResult(_ context.Context, _ models.GenerationRequest, res *models.GenerationResult) error {
	r.published = append(r.published, res)
	return nil
}

type stubChecker struct{ problems []string }

func (s stubChecker) Check(context.Context, string) ([]string, error) { return s.problems, nil }

type stubStamper struct{}

func (stubStamper) Stamp(string) models.Provenance {
	return models.Provenance{Algorithm: "test", CodeHash: "hash"}
}
