// Package llmjson turns free-form model output into decoded JSON.
//
// Parsing walks a fixed list of strategies and returns the first success.
// Strict strategies come first so that an example payload quoted in the
// model's prose never wins over the real answer.
package llmjson

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"alphaseeker/internal/pkg/jsonutil"
	"alphaseeker/internal/pkg/text"
)

const snippetLimit = 800

var ErrMalformedResponse = errors.New("malformed model response")

// MalformedResponseError is returned when no strategy produced valid JSON.
type MalformedResponseError struct {
	Snippet string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	msg := "unknown parse failure"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("model output is not valid JSON: %s. content_snippet=%q", msg, e.Snippet)
}

func (e *MalformedResponseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedResponse}
	}
	return []error{ErrMalformedResponse, e.Err}
}

// Strategy is one step of the fallback chain. It receives the trimmed raw
// text and the fence-stripped text.
type Strategy struct {
	Name  string
	Parse func(raw, cleaned string) (any, error)
}

// Strategies returns the chain in the order Parse applies it.
func Strategies() []Strategy {
	return []Strategy{
		{Name: "strict", Parse: parseStrict},
		{Name: "markdown", Parse: parseMarkdown},
		{Name: "substring", Parse: parseSubstring},
		{Name: "raw", Parse: parseRaw},
	}
}

// Parse decodes the JSON object or array contained in text.
func Parse(s string) (any, error) {
	v, _, err := ParseWithStage(s)
	return v, err
}

// ParseWithStage is Parse that also reports which strategy succeeded.
func ParseWithStage(input string) (any, string, error) {
	raw := strings.TrimSpace(input)
	cleaned := jsonutil.StripFence(raw)
	var lastErr error
	for _, s := range Strategies() {
		v, err := s.Parse(raw, cleaned)
		if err == nil {
			return v, s.Name, nil
		}
		lastErr = err
	}
	return nil, "", &MalformedResponseError{
		Snippet: text.Head(cleaned, snippetLimit),
		Err:     lastErr,
	}
}

// ParseObject is Parse restricted to a top-level object.
func ParseObject(s string) (map[string]any, error) {
	v, err := Parse(s)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &MalformedResponseError{
			Snippet: text.Head(jsonutil.StripFence(s), snippetLimit),
			Err:     fmt.Errorf("expected a JSON object, got %T", v),
		}
	}
	return obj, nil
}

// parseStrict accepts a whole-text JSON document, or a document inside the
// first fenced block (the shape the format instructions ask for).
func parseStrict(raw, _ string) (any, error) {
	v, err := decode(raw)
	if err == nil {
		return v, nil
	}
	if block, ok := jsonutil.FencedBlock(raw); ok {
		return decode(block)
	}
	return nil, err
}

func parseMarkdown(_, cleaned string) (any, error) {
	v, err := decode(cleaned)
	if err == nil {
		return v, nil
	}
	if block, ok := jsonutil.FencedBlock(cleaned); ok {
		return decode(block)
	}
	return nil, err
}

func parseSubstring(_, cleaned string) (any, error) {
	span, ok := jsonutil.GreedySpan(cleaned)
	if !ok {
		return nil, errors.New("no JSON object or array found")
	}
	v, err := decode(span)
	if err == nil {
		return v, nil
	}
	var found any
	jsonutil.EachBalanced(cleaned, func(candidate string) bool {
		if parsed, derr := decode(candidate); derr == nil {
			found = parsed
			return false
		}
		return true
	})
	if found != nil {
		return found, nil
	}
	return nil, err
}

func parseRaw(_, cleaned string) (any, error) {
	return decode(cleaned)
}

func decode(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty content")
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// FormatInstructions is the preamble injected into prompts so the model
// answers in the shape parseStrict accepts.
func FormatInstructions() string {
	return "The output must be a single JSON object that conforms to the requested keys. " +
		"Return only the JSON, optionally wrapped in one ```json fenced block, with no commentary before or after it."
}
