package codegen

import (
	"context"
	"strings"

	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/prompts"
	"github.com/axiom/ucws/internal/sanitize"
)

// newTool generates a single function plus its registration metadata
func (s *Service) newTool(ctx context.Context, r *run, req models.GenerationRequest) *models.GenerationResult {
	prompt, err := prompts.RenderNewTool(prompts.NewToolParams{Description: req.Payload})
	if err != nil {
		return r.fail(models.StatusGenerateUnexpected, err.Error())
	}

	s.stage(ctx, r, models.TaskGeneratingCode, "Calling LLM for new tool generation")
	cfg := s.llmConfig(TaskCodeGeneration, generateTemperature, generateMaxTokens, req.LLMOverrides)
	raw, err := s.invoke(ctx, r, "new_tool", prompt, cfg)
	if err != nil {
		if cancelled(ctx) {
			return s.cancelledResult(ctx, r)
		}
		return r.fail(models.StatusLLMNoOutput, "LLM call failed: "+err.Error())
	}
	if strings.TrimSpace(raw) == "" {
		return r.fail(models.StatusLLMNoOutput, "LLM provided no code")
	}

	meta, code, ok := sanitize.ExtractMetadata(raw, prompts.MetadataPrefix)
	if code == "" {
		return r.fail(models.StatusLLMNoOutput, "no code found after the metadata line")
	}
	if !ok {
		res := r.fail(models.StatusMetadataParsing, "metadata parsing failed for NEW_TOOL")
		res.Code = code
		return res
	}
	r.logf("Parsed tool metadata and %d characters of code", len(code))

	res := &models.GenerationResult{Status: models.StatusSuccess, Code: code, Metadata: meta}
	s.annotate(ctx, r, res)
	return s.persist(ctx, r, req, res, models.StatusSavingCode)
}

// unitTestScaffold generates a unittest skeleton for the payload code
func (s *Service) unitTestScaffold(ctx context.Context, r *run, req models.GenerationRequest) *models.GenerationResult {
	hint, _ := req.StringContext("module_name_hint")
	prompt, err := prompts.RenderUnitTestScaffold(prompts.UnitTestScaffoldParams{
		Code:           req.Payload,
		ModuleNameHint: hint,
	})
	if err != nil {
		return r.fail(models.StatusGenerateUnexpected, err.Error())
	}

	s.stage(ctx, r, models.TaskGeneratingCode, "Calling LLM for unit test scaffold")
	cfg := s.llmConfig(TaskCodeGeneration, generateTemperature, generateMaxTokens, req.LLMOverrides)
	raw, err := s.invoke(ctx, r, "unit_test_scaffold", prompt, cfg)
	if err != nil {
		if cancelled(ctx) {
			return s.cancelledResult(ctx, r)
		}
		return r.fail(models.StatusLLMNoOutput, "LLM call failed: "+err.Error())
	}

	code := sanitize.Code(raw)
	if code == "" {
		return r.fail(models.StatusLLMNoOutput, "LLM output was empty after cleaning")
	}

	res := &models.GenerationResult{Status: models.StatusSuccess, Code: code}
	s.annotate(ctx, r, res)
	return s.persist(ctx, r, req, res, models.StatusSavingCode)
}
