package llm

import (
	"context"
	"strings"
	"sync"
)

// FakeGateway returns scripted responses chosen by prompt substring. It is used
// by tests and by LLM_PROVIDER=fake for offline runs.
type FakeGateway struct {
	mu       sync.Mutex
	rules    []fakeRule
	fallback func(prompt string) (string, error)
	calls    []FakeCall
}

// FakeCall is one recorded invocation
type FakeCall struct {
	Prompt string
	Config Config
}

type fakeRule struct {
	match string
	fn    func(ctx context.Context, prompt string) (string, error)
}

// NewFakeGateway creates a fake with no rules; unmatched prompts fail with
// ErrEmptyResponse.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

func (f *FakeGateway) Name() string { return "fake" }

// On answers prompts containing substr with resp
func (f *FakeGateway) On(substr, resp string) *FakeGateway {
	return f.OnFunc(substr, func(context.Context, string) (string, error) { return resp, nil })
}

// OnError fails prompts containing substr with err
func (f *FakeGateway) OnError(substr string, err error) *FakeGateway {
	return f.OnFunc(substr, func(context.Context, string) (string, error) { return "", err })
}

// OnFunc answers prompts containing substr with fn. Rules are checked in
// registration order.
func (f *FakeGateway) OnFunc(substr string, fn func(ctx context.Context, prompt string) (string, error)) *FakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{match: substr, fn: fn})
	return f
}

// Default sets the answer for prompts no rule matches
func (f *FakeGateway) Default(fn func(prompt string) (string, error)) *FakeGateway {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fallback = fn
	return f
}

// Invoke records the call and returns the first matching rule's answer
func (f *FakeGateway) Invoke(ctx context.Context, prompt string, cfg Config) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, FakeCall{Prompt: prompt, Config: cfg})
	rules := f.rules
	fallback := f.fallback
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, r := range rules {
		if strings.Contains(prompt, r.match) {
			return r.fn(ctx, prompt)
		}
	}
	if fallback != nil {
		return fallback(prompt)
	}
	return "", ErrEmptyResponse
}

// Calls returns a copy of the recorded invocations
func (f *FakeGateway) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}
