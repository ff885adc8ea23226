package codegen

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/axiom/ucws/internal/llm"
	"github.com/axiom/ucws/internal/metrics"
	"github.com/axiom/ucws/internal/models"
	"github.com/axiom/ucws/internal/prompts"
	"github.com/axiom/ucws/internal/sanitize"
)

// DetailGenerator produces the code of one leaf component. A failed
// component is reported as ok=false and becomes a placeholder at assembly.
// Calls share no state and may run concurrently.
type DetailGenerator struct {
	gateway llm.Gateway
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewDetailGenerator creates a detail generator on top of gateway
func NewDetailGenerator(gateway llm.Gateway, logger *zap.Logger, m *metrics.Metrics) *DetailGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DetailGenerator{gateway: gateway, logger: logger, metrics: m}
}

// Generate returns sanitized code for component. It fails on gateway errors,
// on the implementation-error sentinel and on implausibly short output.
func (g *DetailGenerator) Generate(ctx context.Context, component models.ComponentSpec, kind, contextSummary string, imports []string, cfg llm.Config) (string, bool) {
	code, err := g.generate(ctx, component, kind, contextSummary, imports, cfg)
	if err != nil {
		g.logger.Warn("component detail generation failed",
			zap.String("component", component.Name),
			zap.Error(err),
		)
		g.record("placeholder")
		return "", false
	}
	g.record("generated")
	return code, true
}

func (g *DetailGenerator) generate(ctx context.Context, c models.ComponentSpec, kind, contextSummary string, imports []string, cfg llm.Config) (string, error) {
	prompt, err := prompts.RenderComponentDetail(prompts.ComponentDetailParams{
		ContextSummary:  contextSummary,
		Kind:            kind,
		Name:            c.Name,
		Signature:       c.Signature,
		Description:     c.Description,
		BodyPlaceholder: c.BodyPlaceholder,
		Imports:         imports,
	})
	if err != nil {
		return "", err
	}

	raw, err := g.gateway.Invoke(ctx, prompt, cfg)
	if err != nil {
		return "", err
	}
	if strings.Contains(raw, prompts.SentinelImplementationErr) {
		return "", fmt.Errorf("model reported an implementation error")
	}
	code := sanitize.Code(raw)
	if len(code) < minPlausibleCode {
		return "", fmt.Errorf("output too short (%d characters)", len(code))
	}
	return code, nil
}

func (g *DetailGenerator) record(outcome string) {
	if g.metrics != nil {
		g.metrics.RecordComponentDetail(outcome)
	}
}

// ContextSummary describes where a leaf lives: its class for methods, the
// module for top-level functions.
func ContextSummary(o *models.Outline, leaf models.Leaf) string {
	if leaf.Parent != nil {
		attrs := make([]string, 0, len(leaf.Parent.Attributes))
		for _, a := range leaf.Parent.Attributes {
			if a.Type != "" {
				attrs = append(attrs, a.Name+": "+a.Type)
			} else {
				attrs = append(attrs, a.Name)
			}
		}
		return fmt.Sprintf("Within class '%s' with attributes (%s). Overall class description: %s",
			leaf.Parent.Name, strings.Join(attrs, ", "), leaf.Parent.Description)
	}
	if o.ModuleDocstring != "" {
		return o.ModuleDocstring
	}
	return "No overall description provided in outline."
}

func leafKind(leaf models.Leaf) string {
	if leaf.Parent != nil {
		return "method"
	}
	return string(models.KindFunction)
}
