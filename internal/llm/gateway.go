// Package llm is the boundary between the code service and LLM providers.
//
// A Gateway turns a prompt plus per-call parameters into text. Cross-cutting
// behaviour (retries, per-call timeouts, rate limits, circuit breaking,
// logging, metrics, tracing, usage accounting) is layered on with Middleware.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Config carries per-call invocation parameters
type Config struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Gateway is the capability the code service needs from an LLM provider
type Gateway interface {
	Name() string
	Invoke(ctx context.Context, prompt string, cfg Config) (string, error)
}

var (
	// ErrEmptyResponse is returned when a provider answers with no text
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrCircuitOpen is returned while the circuit breaker rejects calls
	ErrCircuitOpen = errors.New("llm: circuit open")
)

// PermanentError marks failures that retrying will not fix
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so Retry gives up immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) is permanent
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
