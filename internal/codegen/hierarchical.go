package codegen

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/axiom/ucws/internal/assembler"
	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/outline"
	"github.com/axiom/ucws/internal/prompts"
)

// outlineOnly stops after the outline stage
func (s *Service) outlineOnly(ctx context.Context, r *run, req models.GenerationRequest) *models.GenerationResult {
	o, failed := s.planOutline(ctx, r, req)
	if failed != nil {
		return failed
	}
	return &models.GenerationResult{Status: models.StatusOutlineGenerated, Outline: o}
}

// detailsOnly generates the outline and every component but skips assembly
func (s *Service) detailsOnly(ctx context.Context, r *run, req models.GenerationRequest) *models.GenerationResult {
	o, failed := s.planOutline(ctx, r, req)
	if failed != nil {
		return failed
	}
	results, keys := s.generateDetails(ctx, r, req, o)
	if cancelled(ctx) {
		return s.cancelledResult(ctx, r)
	}

	res := &models.GenerationResult{Outline: o, ComponentResults: results}
	missing := results.Failed(keys)
	switch {
	case len(missing) == 0:
		res.Status = models.StatusDetailsGenerated
	case len(missing) < len(keys):
		res.Status = models.StatusPartialDetailsGenerated
		res.Error = "no code generated for: " + strings.Join(missing, ", ")
	default:
		res.Status = models.StatusDetailGenerationFailed
		res.Error = "no component details could be generated"
	}
	r.logf("Detail generation phase status: %s", res.Status)
	return res
}

// hierarchical runs outline, component details and assembly
func (s *Service) hierarchical(ctx context.Context, r *run, req models.GenerationRequest) *models.GenerationResult {
	o, failed := s.planOutline(ctx, r, req)
	if failed != nil {
		return failed
	}
	results, keys := s.generateDetails(ctx, r, req, o)
	if cancelled(ctx) {
		return s.cancelledResult(ctx, r)
	}

	code, err := s.assemble(ctx, o, results)
	if err != nil {
		res := r.fail(models.StatusAssemblyFailed, err.Error())
		res.Outline = o
		res.ComponentResults = results
		return res
	}
	r.logf("Assembled %d characters of code", len(code))

	res := &models.GenerationResult{
		Status:           models.StatusHierarchicalAssembled,
		Code:             code,
		Outline:          o,
		ComponentResults: results,
	}
	if missing := results.Failed(keys); len(missing) > 0 {
		res.Status = models.StatusPartialAssembled
		res.Error = "placeholders substituted for: " + strings.Join(missing, ", ")
		r.logf("%d of %d component(s) were placeholdered", len(missing), len(keys))
	}
	s.annotate(ctx, r, res)
	return s.persist(ctx, r, req, res, models.StatusSavingAssembledCode)
}

// planOutline asks the model for an outline and parses it. A non-nil result
// is the terminal failure.
func (s *Service) planOutline(ctx context.Context, r *run, req models.GenerationRequest) (*models.Outline, *models.GenerationResult) {
	prompt, err := prompts.RenderOutline(prompts.OutlineParams{Requirement: req.Payload})
	if err != nil {
		return nil, r.fail(models.StatusGenerateUnexpected, err.Error())
	}

	s.stage(ctx, r, models.TaskPlanningCode, "Generating hierarchical outline")
	cfg := s.llmConfig(TaskCodeOutline, generateTemperature, generateMaxTokens, req.LLMOverrides)
	raw, err := s.invoke(ctx, r, "outline", prompt, cfg)
	if err != nil {
		if cancelled(ctx) {
			return nil, s.cancelledResult(ctx, r)
		}
		return nil, r.fail(models.StatusOutlineFailed, "outline generation failed: "+err.Error())
	}
	if strings.TrimSpace(raw) == "" {
		return nil, r.fail(models.StatusOutlineFailed, "LLM provided no outline")
	}

	o, err := outline.Parse(raw)
	if err != nil {
		return nil, r.fail(models.StatusOutlineParsing, err.Error())
	}
	r.logf("Parsed outline with %d top-level component(s)", len(o.Components))
	return o, nil
}

// generateDetails fans out detail generation over every leaf component with
// bounded concurrency. Each goroutine writes only its own slot, and the map is
// built in declaration order after all of them finish.
func (s *Service) generateDetails(ctx context.Context, r *run, req models.GenerationRequest, o *models.Outline) (models.ComponentResults, []string) {
	leaves := o.Leaves()
	keys := make([]string, len(leaves))
	for i, l := range leaves {
		keys[i] = l.Key
	}

	ctx, span := s.tracer.Start(ctx, "codegen.details")
	span.SetAttributes(attribute.Int("ucws.components", len(leaves)))
	defer span.End()

	s.stage(ctx, r, models.TaskGeneratingCode, fmt.Sprintf("Generating details for %d component(s)", len(leaves)))
	cfg := s.llmConfig(TaskCodeDetail, detailTemperature, detailMaxTokens, req.LLMOverrides)

	codes := make([]*string, len(leaves))
	var g errgroup.Group
	g.SetLimit(s.opts.DetailConcurrency)
	for i, leaf := range leaves {
		if cancelled(ctx) {
			break
		}
		g.Go(func() error {
			code, ok := s.detail.Generate(ctx, leaf.Component, leafKind(leaf), ContextSummary(o, leaf), o.Imports, cfg)
			if ok {
				codes[i] = &code
				r.logf("Generated %s (%d characters)", leaf.Key, len(code))
			} else {
				r.logf("No usable code for %s; it will be placeholdered", leaf.Key)
			}
			return nil
		})
	}
	_ = g.Wait()

	results := make(models.ComponentResults, len(leaves))
	for i, key := range keys {
		results[key] = codes[i]
	}
	return results, keys
}

// assemble runs the assembler and turns a panic into an error
func (s *Service) assemble(ctx context.Context, o *models.Outline, results models.ComponentResults) (code string, err error) {
	_, span := s.tracer.Start(ctx, "codegen.assemble")
	defer span.End()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("assembly failed: %v", p)
		}
	}()

	code = assembler.Assemble(o, results)
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("assembly produced no code")
	}
	return code, nil
}
