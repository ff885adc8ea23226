package llm

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/axiom/ucws/internal/metrics"
)

// BuildOptions selects a provider and the resilience settings around it
type BuildOptions struct {
	Provider     string // ollama, gemini or fake
	OllamaURL    string
	GeminiAPIKey string
	DefaultModel string

	Timeout          time.Duration
	Retries          int
	RetryBase        time.Duration
	RatePerSecond    float64
	Burst            int
	BreakerThreshold int
	BreakerTimeout   time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
	Usage   UsageSink

	// Fake is used for the fake provider; a new empty one when nil
	Fake *FakeGateway
}

// Build creates the provider gateway and wraps it in the standard chain:
// tracing, logging, metrics and usage around retries, with the breaker, the
// rate limiter and the per-attempt timeout innermost.
func Build(ctx context.Context, opts BuildOptions) (Gateway, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var provider Gateway
	switch opts.Provider {
	case "", "ollama":
		provider = NewOllamaGateway(opts.OllamaURL, opts.DefaultModel)
	case "gemini":
		g, err := NewGeminiGateway(ctx, opts.GeminiAPIKey, opts.DefaultModel)
		if err != nil {
			return nil, err
		}
		provider = g
	case "fake":
		if opts.Fake != nil {
			provider = opts.Fake
		} else {
			provider = NewFakeGateway()
		}
	default:
		return nil, fmt.Errorf("unknown llm provider %q", opts.Provider)
	}

	cb := NewCircuitBreakerWithConfig(opts.BreakerThreshold, 2, opts.BreakerTimeout)
	name := provider.Name()
	cb.OnStateChange = func(from, to CircuitState) {
		logger.Warn("llm circuit breaker state changed",
			zap.String("gateway", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		if opts.Metrics != nil {
			opts.Metrics.SetCircuitState(name, int(to))
		}
	}

	var mws []Middleware
	if opts.Tracer != nil {
		mws = append(mws, Trace(opts.Tracer))
	}
	mws = append(mws, WithLogging(logger))
	if opts.Metrics != nil {
		mws = append(mws, Instrument(opts.Metrics))
	}
	if opts.Usage != nil {
		mws = append(mws, WithUsage(opts.Usage, logger))
	}
	mws = append(mws,
		Retry(opts.Retries+1, opts.RetryBase),
		Breaker(cb),
		RateLimit(opts.RatePerSecond, opts.Burst),
		Timeout(opts.Timeout),
	)

	logger.Info("llm gateway ready",
		zap.String("provider", name),
		zap.String("default_model", opts.DefaultModel),
		zap.Int("retries", opts.Retries),
		zap.Duration("timeout", opts.Timeout),
	)
	return Wrap(provider, mws...), nil
}
