package provider

import (
	"context"
	"errors"
	"fmt"
)

// ChatPayload is one system+user prompt pair.
type ChatPayload struct {
	System      string
	User        string
	Temperature *float64
	// Purpose tags transcripts and metrics (analyze, challenge, react-qual, ...).
	Purpose string
}

// ModelProvider turns a prompt pair into response text.
type ModelProvider interface {
	ID() string
	Model() string
	Call(ctx context.Context, payload ChatPayload) (string, error)
}

var ErrProvider = errors.New("model provider error")

// Error is every failure surfaced by a provider: transport, auth, rate limit,
// timeout, open circuit.
type Error struct {
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider %s: status=%d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrProvider, e.Err}
}

// Temperature is a helper for building payloads.
func Temperature(v float64) *float64 { return &v }
