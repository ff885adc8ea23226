package llm

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/axiom/ucws/internal/metrics"
)

// Middleware decorates a Gateway with a cross-cutting concern
type Middleware func(Gateway) Gateway

// Wrap applies middlewares in left-to-right order.
// Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Gateway, mws ...Middleware) Gateway {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			out = mws[i](out)
		}
	}
	return out
}

// gatewayFunc adapts a closure into a Gateway that keeps the inner name
type gatewayFunc struct {
	name   string
	invoke func(ctx context.Context, prompt string, cfg Config) (string, error)
}

func (g gatewayFunc) Name() string { return g.name }
func (g gatewayFunc) Invoke(ctx context.Context, prompt string, cfg Config) (string, error) {
	return g.invoke(ctx, prompt, cfg)
}

// -------- Retry with exponential backoff --------

// Retry retries Invoke up to maxAttempts with exponential backoff starting at
// baseDelay. Permanent errors and context cancellation stop immediately.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Gateway) Gateway {
		return gatewayFunc{name: next.Name(), invoke: func(ctx context.Context, prompt string, cfg Config) (string, error) {
			var last error
			for i := 0; i < maxAttempts; i++ {
				out, err := next.Invoke(ctx, prompt, cfg)
				if err == nil {
					return out, nil
				}
				if IsPermanent(err) {
					return "", err
				}
				last = err
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				if i == maxAttempts-1 {
					break
				}
				t := time.NewTimer(baseDelay * time.Duration(1<<i))
				select {
				case <-ctx.Done():
					t.Stop()
					return "", ctx.Err()
				case <-t.C:
				}
			}
			return "", last
		}}
	}
}

// -------- Per-call timeout --------

// Timeout bounds every single invocation. d <= 0 disables it.
func Timeout(d time.Duration) Middleware {
	return func(next Gateway) Gateway {
		if d <= 0 {
			return next
		}
		return gatewayFunc{name: next.Name(), invoke: func(ctx context.Context, prompt string, cfg Config) (string, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Invoke(ctx, prompt, cfg)
		}}
	}
}

// -------- Rate limiting --------

// RateLimit limits the request rate with a token bucket.
// rps <= 0 disables the limiter.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Gateway) Gateway {
		if rps <= 0 {
			return next
		}
		if burst < 1 {
			burst = 1
		}
		lim := rate.NewLimiter(rate.Limit(rps), burst)
		return gatewayFunc{name: next.Name(), invoke: func(ctx context.Context, prompt string, cfg Config) (string, error) {
			if err := lim.Wait(ctx); err != nil {
				return "", err
			}
			return next.Invoke(ctx, prompt, cfg)
		}}
	}
}

// -------- Circuit breaker --------

// Breaker rejects calls with a permanent ErrCircuitOpen while cb is open.
// Caller cancellations are not counted as provider failures.
func Breaker(cb *CircuitBreaker) Middleware {
	return func(next Gateway) Gateway {
		return gatewayFunc{name: next.Name(), invoke: func(ctx context.Context, prompt string, cfg Config) (string, error) {
			if !cb.Allow() {
				return "", Permanent(ErrCircuitOpen)
			}
			out, err := next.Invoke(ctx, prompt, cfg)
			switch {
			case err == nil:
				cb.RecordSuccess()
			case errors.Is(err, context.Canceled):
			default:
				cb.RecordFailure()
			}
			return out, err
		}}
	}
}

// -------- Logging, metrics, tracing --------

// WithLogging logs request sizes, latency and errors
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Gateway) Gateway {
		return gatewayFunc{name: next.Name(), invoke: func(ctx context.Context, prompt string, cfg Config) (string, error) {
			start := time.Now()
			out, err := next.Invoke(ctx, prompt, cfg)
			fields := []zap.Field{
				zap.String("gateway", next.Name()),
				zap.String("model", cfg.Model),
				zap.Int("prompt_chars", len(prompt)),
				zap.Int("output_chars", len(out)),
				zap.Duration("latency", time.Since(start)),
			}
			if err != nil {
				logger.Warn("llm invocation failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("llm invocation", fields...)
			}
			return out, err
		}}
	}
}

// Instrument records call counts and latency
func Instrument(m *metrics.Metrics) Middleware {
	return func(next Gateway) Gateway {
		if m == nil {
			return next
		}
		return gatewayFunc{name: next.Name(), invoke: func(ctx context.Context, prompt string, cfg Config) (string, error) {
			start := time.Now()
			out, err := next.Invoke(ctx, prompt, cfg)
			m.RecordLLMCall(next.Name(), outcome(err), time.Since(start))
			return out, err
		}}
	}
}

// Trace wraps each invocation in a span
func Trace(tracer trace.Tracer) Middleware {
	return func(next Gateway) Gateway {
		if tracer == nil {
			return next
		}
		return gatewayFunc{name: next.Name(), invoke: func(ctx context.Context, prompt string, cfg Config) (string, error) {
			ctx, span := tracer.Start(ctx, "llm.invoke", trace.WithAttributes(
				attribute.String("llm.gateway", next.Name()),
				attribute.String("llm.model", cfg.Model),
				attribute.Int("llm.prompt_chars", len(prompt)),
				attribute.Int("llm.max_tokens", cfg.MaxTokens),
			))
			defer span.End()

			out, err := next.Invoke(ctx, prompt, cfg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.SetAttributes(attribute.Int("llm.output_chars", len(out)))
			return out, err
		}}
	}
}

// -------- Usage accounting --------

// UsageRecord describes one finished invocation
type UsageRecord struct {
	Gateway     string
	Model       string
	PromptChars int
	OutputChars int
	Latency     time.Duration
	Outcome     string
}

// UsageSink persists usage records
type UsageSink interface {
	RecordUsage(ctx context.Context, rec UsageRecord) error
}

// WithUsage reports every invocation to sink. Sink failures are logged and
// never fail the call.
func WithUsage(sink UsageSink, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Gateway) Gateway {
		if sink == nil {
			return next
		}
		return gatewayFunc{name: next.Name(), invoke: func(ctx context.Context, prompt string, cfg Config) (string, error) {
			start := time.Now()
			out, err := next.Invoke(ctx, prompt, cfg)
			rec := UsageRecord{
				Gateway:     next.Name(),
				Model:       cfg.Model,
				PromptChars: len(prompt),
				OutputChars: len(out),
				Latency:     time.Since(start),
				Outcome:     outcome(err),
			}
			// The request context may already be cancelled; the ledger write
			// gets its own short deadline.
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if uerr := sink.RecordUsage(uctx, rec); uerr != nil {
				logger.Warn("failed to record llm usage", zap.Error(uerr))
			}
			return out, err
		}}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	default:
		return "error"
	}
}
