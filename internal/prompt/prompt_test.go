package prompt

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	out, err := Format(`{"ticker": "{ticker}", "x": {{}}}`, map[string]string{"ticker": "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, `{"ticker": "AAPL", "x": {}}`, out)
}

func TestFormatErrors(t *testing.T) {
	cases := map[string]string{
		"missing":  "hello {name}",
		"unclosed": "hello {name",
		"stray":    "hello } there",
		"invalid":  `{ "a": 1 }`,
	}
	for label, tpl := range cases {
		t.Run(label, func(t *testing.T) {
			_, err := Format(tpl, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTemplate)
		})
	}

	_, err := Format("hello {name}", nil)
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "name", te.Placeholder)
}

func TestLoaderFallsBackToBuiltins(t *testing.T) {
	l := NewLoader(t.TempDir())
	for _, name := range []string{Analyze, Challenge, ReactEarnings, ReactValuation} {
		txt, err := l.Load(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, txt)
	}
	_, err := l.Load("nope.txt")
	assert.ErrorIs(t, err, ErrTemplate)
}

func TestBuiltinsRender(t *testing.T) {
	l := NewLoader("")
	out, err := l.Render(Analyze, map[string]string{
		"ticker":              "AAPL",
		"price":               "189.5",
		"custom_metrics":      "none",
		"format_instructions": "JSON only",
	})
	require.NoError(t, err)
	assert.Contains(t, out, `"ticker": "AAPL"`)
	assert.Contains(t, out, "189.5")
	assert.NotContains(t, out, "{{")

	_, err = l.Render(Challenge, map[string]string{"company_name": "Apple"})
	var te *TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, Challenge, te.Name)
}

func TestLoaderPrefersDirAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, Analyze)
	require.NoError(t, os.WriteFile(path, []byte("v1 {ticker}"), 0o644))

	l := NewLoader(dir)
	out, err := l.Render(Analyze, map[string]string{"ticker": "T"})
	require.NoError(t, err)
	assert.Equal(t, "v1 T", out)

	require.NoError(t, os.WriteFile(path, []byte("v2 {ticker}"), 0o644))
	out, _ = l.Render(Analyze, map[string]string{"ticker": "T"})
	assert.Equal(t, "v1 T", out, "cached until invalidated")

	l.Invalidate(path)
	out, _ = l.Render(Analyze, map[string]string{"ticker": "T"})
	assert.Equal(t, "v2 T", out)
}

func TestWatchInvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, Challenge)
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	l := NewLoader(dir)
	txt, err := l.Load(Challenge)
	require.NoError(t, err)
	require.Equal(t, "old", txt)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("new"), 0o644))
	assert.Eventually(t, func() bool {
		txt, err := l.Load(Challenge)
		return err == nil && txt == "new"
	}, 2*time.Second, 20*time.Millisecond)
}
