package llmjson

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  any
		stage string
	}{
		{
			name:  "plain object",
			input: `{"a": 1}`,
			want:  map[string]any{"a": 1.0},
			stage: "strict",
		},
		{
			name:  "fenced json",
			input: "```json\n{\"a\":1}\n```",
			want:  map[string]any{"a": 1.0},
			stage: "strict",
		},
		{
			name:  "fence without language tag",
			input: "```\n[1, 2]\n```",
			want:  []any{1.0, 2.0},
			stage: "strict",
		},
		{
			name:  "unterminated fence",
			input: "```json\n{\"a\": {\"b\": true}}",
			want:  map[string]any{"a": map[string]any{"b": true}},
			stage: "markdown",
		},
		{
			name:  "prose around object",
			input: `Here is the result: {"a": 1, "b": [1,2]} Thanks`,
			want:  map[string]any{"a": 1.0, "b": []any{1.0, 2.0}},
			stage: "substring",
		},
		{
			name:  "prose around array",
			input: "Result:\n[{\"x\": \"y\"}]\nDone.",
			want:  []any{map[string]any{"x": "y"}},
			stage: "substring",
		},
		{
			name:  "two fragments fall back to balanced scan",
			input: `first {"a": 1} then {"b": 2}`,
			want:  map[string]any{"a": 1.0},
			stage: "substring",
		},
		{
			name:  "braces inside strings",
			input: `note: {"text": "use } carefully", "n": 2} end`,
			want:  map[string]any{"text": "use } carefully", "n": 2.0},
			stage: "substring",
		},
		{
			name:  "non-ascii content",
			input: "```json\n{\"公司\": \"贵州茅台\"}\n```",
			want:  map[string]any{"公司": "贵州茅台"},
			stage: "strict",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, stage, err := ParseWithStage(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.stage, stage)
		})
	}
}

func TestParsePrefersWholeDocument(t *testing.T) {
	// The outer document is valid, so the embedded example must not win.
	input := `{"answer": {"ticker": "AAPL"}, "example": "{\"ticker\": \"XXX\"}"}`
	got, err := Parse(input)
	require.NoError(t, err)
	obj := got.(map[string]any)
	assert.Equal(t, map[string]any{"ticker": "AAPL"}, obj["answer"])
}

func TestParseMalformed(t *testing.T) {
	_, err := Parse("not json at all")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))

	var mr *MalformedResponseError
	require.True(t, errors.As(err, &mr))
	assert.Equal(t, "not json at all", mr.Snippet)
	assert.NotNil(t, mr.Err)
	assert.Contains(t, err.Error(), "content_snippet=")
}

func TestParseMalformedSnippetIsBounded(t *testing.T) {
	long := "{" + strings.Repeat("x", 2000)
	_, err := Parse(long)
	var mr *MalformedResponseError
	require.True(t, errors.As(err, &mr))
	assert.Len(t, []rune(mr.Snippet), snippetLimit)
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse("   ")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestParseObject(t *testing.T) {
	obj, err := ParseObject("```json\n{\"k\": \"v\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "v", obj["k"])

	_, err = ParseObject("[1,2,3]")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestStrategyOrder(t *testing.T) {
	names := make([]string, 0, 4)
	for _, s := range Strategies() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"strict", "markdown", "substring", "raw"}, names)
}
