package codegen

import (
	"context"
	"strings"

	"github.com/axiom/ucws/internal/diff"
	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/prompts"
	"github.com/axiom/ucws/internal/sanitize"
)

// modify serves SELF_FIX_TOOL and GRANULAR_CODE_REFACTOR: fetch the original
// source when not supplied, ask for a replacement, diff it and optionally
// apply it through the self-modification backend.
func (s *Service) modify(ctx context.Context, r *run, req models.GenerationRequest) *models.GenerationResult {
	needsLocation := req.ExistingCode == nil || req.ApplyChanges
	if needsLocation && (strings.TrimSpace(req.ModulePath) == "" || strings.TrimSpace(req.FunctionName) == "") {
		return r.fail(models.StatusMissingDetails, "module_path and function_name are required to read or apply source")
	}
	if needsLocation && s.opts.SelfMod == nil {
		return r.fail(models.StatusSelfModServiceMissing, "self-modification service not configured")
	}

	var section string
	if req.Context == models.ContextGranularRefactor {
		var ok bool
		if section, ok = req.StringContext("section_identifier"); !ok {
			return r.fail(models.StatusMissingSectionIdentifier, "additional_context.section_identifier is required for GRANULAR_CODE_REFACTOR")
		}
	}

	original, failed := s.originalSource(ctx, r, req)
	if failed != nil {
		return failed
	}

	prompt, sentinel, err := modifyPrompt(req, original, section)
	if err != nil {
		return r.fail(models.StatusModifyUnexpected, err.Error())
	}

	s.stage(ctx, r, models.TaskGeneratingCode, "Calling LLM for code modification")
	cfg := s.llmConfig(TaskCodeModification, modifyTemperature, modifyMaxTokens, req.LLMOverrides)
	raw, err := s.invoke(ctx, r, "modify", prompt, cfg)
	if err != nil {
		if cancelled(ctx) {
			return s.cancelledResult(ctx, r)
		}
		return r.fail(models.StatusLLMNoSuggestion, "LLM call failed: "+err.Error())
	}
	if strings.Contains(raw, sentinel) || len(strings.TrimSpace(raw)) < minPlausibleCode {
		return r.fail(models.StatusLLMNoSuggestion, "LLM provided no usable suggestion or indicated impossibility ("+sentinel+")")
	}
	code := sanitize.Code(raw)
	if len(code) < minPlausibleCode {
		return r.fail(models.StatusLLMNoSuggestion, "LLM suggestion was empty after cleaning")
	}
	r.logf("LLM generated a %d character suggestion", len(code))

	label := req.FunctionName
	if label == "" {
		label = "code"
	}
	res := &models.GenerationResult{
		Status: models.StatusSuccess,
		Code:   code,
		Diff:   diff.Unified("a/"+label, "b/"+label, original, code),
	}
	s.annotate(ctx, r, res)

	if !req.ApplyChanges {
		return res
	}
	if cancelled(ctx) {
		return s.cancelledResult(ctx, r)
	}
	s.stage(ctx, r, models.TaskApplyingChanges, "Applying change to "+req.ModulePath+"."+req.FunctionName)
	if err := s.opts.SelfMod.EditFunctionSource(ctx, req.ModulePath, req.FunctionName, code); err != nil {
		res.Status = models.StatusApplyingChange
		res.Error = "failed to apply change: " + err.Error()
		r.logf("%s", res.Error)
		return res
	}
	if res.Metadata == nil {
		res.Metadata = map[string]interface{}{}
	}
	res.Metadata["applied"] = true
	r.logf("Applied change to %s.%s", req.ModulePath, req.FunctionName)
	return res
}

// originalSource returns the code to modify: the request's own copy, or the
// function read through the self-modification backend.
func (s *Service) originalSource(ctx context.Context, r *run, req models.GenerationRequest) (string, *models.GenerationResult) {
	if req.ExistingCode != nil {
		if strings.TrimSpace(*req.ExistingCode) == "" {
			return "", r.fail(models.StatusNoOriginalCode, "existing_code is empty")
		}
		return *req.ExistingCode, nil
	}

	src, err := s.opts.SelfMod.ReadFunctionSource(ctx, req.ModulePath, req.FunctionName)
	if err != nil {
		if cancelled(ctx) {
			return "", s.cancelledResult(ctx, r)
		}
		return "", r.fail(models.StatusNoOriginalCode, "cannot get original code: "+err.Error())
	}
	if strings.TrimSpace(src) == "" {
		return "", r.fail(models.StatusNoOriginalCode, "original code is empty")
	}
	r.logf("Loaded %d characters of original source for %s.%s", len(src), req.ModulePath, req.FunctionName)
	return src, nil
}

func modifyPrompt(req models.GenerationRequest, original, section string) (prompt, sentinel string, err error) {
	if req.Context == models.ContextGranularRefactor {
		prompt, err = prompts.RenderGranularRefactor(prompts.GranularRefactorParams{
			ModulePath:   req.ModulePath,
			FunctionName: req.FunctionName,
			OriginalCode: original,
			Section:      section,
			Instruction:  req.Payload,
		})
		return prompt, prompts.SentinelRefactorImpossible, err
	}
	prompt, err = prompts.RenderCodeFix(prompts.CodeFixParams{
		ModulePath:   req.ModulePath,
		FunctionName: req.FunctionName,
		Problem:      req.Payload,
		OriginalCode: original,
	})
	return prompt, prompts.SentinelNoCodeSuggestion, err
}
