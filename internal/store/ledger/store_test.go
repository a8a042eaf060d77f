package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tick := time.Date(2025, 1, 2, 3, 4, 5, 0, time.Local)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	s, err := Open(filepath.Join(t.TempDir(), "data", "history.jsonl"), WithClock(clock))
	require.NoError(t, err)
	return s
}

func price(v float64) *float64 { return &v }

func TestAppendThenLoadNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	r1, err := s.Append(ctx, "AAPL", map[string]any{"n": 1.0}, price(190.5), "")
	require.NoError(t, err)
	r2, err := s.Append(ctx, "AAPL", map[string]any{"n": 2.0}, nil, "")
	require.NoError(t, err)

	got, err := s.Load(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].Data["n"])
	assert.Equal(t, 1.0, got[1].Data["n"])
	assert.Equal(t, r2.Timestamp, got[0].Timestamp)
	assert.Equal(t, r1.Timestamp, got[1].Timestamp)
	require.NotNil(t, got[1].Price)
	assert.Equal(t, 190.5, *got[1].Price)
	assert.Nil(t, got[0].Price)
}

func TestAppendDefaultsTimestamp(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.Append(context.Background(), "AAPL", nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-02T03:04:06.000000", rec.Timestamp)

	rec, err = s.Append(context.Background(), "AAPL", nil, nil, "2024-06-01T00:00:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-06-01T00:00:00", rec.Timestamp)
}

func TestAppendRejectsEmptyTicker(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Append(context.Background(), "  ", nil, nil, "")
	assert.Error(t, err)
}

func TestReplaceKeepsOnlyNewRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Append(ctx, "AAPL", map[string]any{"v": "old"}, nil, "")
	require.NoError(t, err)
	_, err = s.Append(ctx, "AAPL", map[string]any{"v": "older"}, nil, "")
	require.NoError(t, err)
	_, err = s.Replace(ctx, "AAPL", map[string]any{"v": "new"}, price(1), "")
	require.NoError(t, err)

	got, err := s.Load(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Data["v"])
}

func TestReplacePreservesOtherTickers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Append(ctx, "MSFT", map[string]any{"i": 1.0}, nil, "")
	require.NoError(t, err)
	_, err = s.Append(ctx, "AAPL", map[string]any{"i": 2.0}, nil, "")
	require.NoError(t, err)
	_, err = s.Append(ctx, "MSFT", map[string]any{"i": 3.0}, nil, "")
	require.NoError(t, err)

	before, err := s.Load(ctx, "MSFT")
	require.NoError(t, err)

	_, err = s.Replace(ctx, "AAPL", map[string]any{"i": 4.0}, nil, "")
	require.NoError(t, err)

	after, err := s.Load(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	all, err := s.Load(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "AAPL", all[0].Ticker, "replacement is appended last")
}

func TestReplaceOnMissingFileCreatesIt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Replace(ctx, "TSLA", map[string]any{}, nil, "")
	require.NoError(t, err)

	got, err := s.Load(ctx, "")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(s.Path()), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temp file must be renamed away")
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Load(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLoadSkipsCorruptLines(t *testing.T) {
	s := newTestStore(t)
	content := strings.Join([]string{
		`{"timestamp":"2024-01-01T00:00:00","ticker":"AAPL","price":1.5,"data":{"ticker":"AAPL"}}`,
		`{"timestamp": "2024-01-02T00:00:00", "ticker": "AA`,
		``,
		`{"timestamp":"2024-01-03T00:00:00","ticker":"MSFT","price":null,"data":{}}`,
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	got, err := s.Load(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "MSFT", got[0].Ticker)
	assert.Equal(t, "AAPL", got[1].Ticker)
}

func TestAppendAfterUnterminatedLastLine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	legacy := `{"timestamp":"t0","ticker":"AAA","price":null,"data":{}}`
	require.NoError(t, os.WriteFile(s.Path(), []byte(legacy), 0o644))

	_, err := s.Append(ctx, "BBB", map[string]any{}, nil, "t1")
	require.NoError(t, err)

	got, err := s.Load(ctx, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "BBB", got[0].Ticker)
	assert.Equal(t, "AAA", got[1].Ticker)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), legacy+"\n"), "existing line is left as written")
}

func TestLoadNonStringTimestamp(t *testing.T) {
	s := newTestStore(t)
	content := strings.Join([]string{
		`{"timestamp":1700000000,"ticker":"AAA","data":{}}`,
		`{"timestamp":null,"ticker":"BBB","data":{}}`,
		`{"ticker":"CCC","price":"12","data":{}}`,
		`["not","a","record"]`,
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	got, err := s.Load(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "BBB", got[0].Ticker)
	assert.Equal(t, "", got[0].Timestamp)
	assert.Equal(t, "AAA", got[1].Ticker)
	assert.Equal(t, "1700000000", got[1].Timestamp)
}

func TestLoadBackwardCompatibility(t *testing.T) {
	s := newTestStore(t)
	content := strings.Join([]string{
		`{"timestamp":"2024-01-01T00:00:00","ticker":"AAPL","data":{"company_name":"Apple"}}`,
		`{"timestamp":"2024-01-02T00:00:00","ticker":"","price":3,"data":{"ticker":"NVDA"}}`,
	}, "\n")
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))

	got, err := s.Load(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "NVDA", got[0].Ticker, "record ticker filled from data")
	require.NotNil(t, got[0].Price)
	assert.Equal(t, 3.0, *got[0].Price)

	assert.Nil(t, got[1].Price, "missing price reads as null")
	assert.Equal(t, "AAPL", got[1].Data["ticker"], "data ticker filled from record")

	nvda, err := s.Load(context.Background(), "NVDA")
	require.NoError(t, err)
	assert.Len(t, nvda, 1)
}

func TestReplaceMatchesCrossFilledTicker(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	legacy := `{"timestamp":"2024-01-02T00:00:00","ticker":"","price":null,"data":{"ticker":"NVDA"}}` + "\n"
	require.NoError(t, os.WriteFile(s.Path(), []byte(legacy), 0o644))

	_, err := s.Replace(ctx, "NVDA", map[string]any{"ticker": "NVDA"}, nil, "")
	require.NoError(t, err)

	got, err := s.Load(ctx, "NVDA")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, ok, err := s.Latest(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Append(ctx, "AAPL", map[string]any{"n": 1.0}, nil, "")
	require.NoError(t, err)
	_, err = s.Append(ctx, "MSFT", map[string]any{"n": 2.0}, nil, "")
	require.NoError(t, err)

	all, err := s.Load(ctx, "")
	require.NoError(t, err)
	latest, ok, err := s.Latest(ctx, "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, all[0], latest)

	aapl, ok, err := s.Latest(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1.0, aapl.Data["n"])

	_, ok, err = s.Latest(ctx, "GOOG")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTickers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, tk := range []string{"MSFT", "AAPL", "MSFT", "NVDA"} {
		_, err := s.Append(ctx, tk, nil, nil, "")
		require.NoError(t, err)
	}
	got, err := s.Tickers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, got)
}

func TestOnDiskFormat(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Append(context.Background(), "600519", map[string]any{"company_name": "贵州茅台", "note": "<b>&</b>"}, nil, "2024-01-01T00:00:00")
	require.NoError(t, err)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	line := string(raw)
	assert.True(t, strings.HasSuffix(line, "}\n"))
	assert.Equal(t, 1, strings.Count(line, "\n"))
	assert.Contains(t, line, "贵州茅台")
	assert.Contains(t, line, "<b>&</b>")
	assert.Contains(t, line, `"price":null`)
	assert.True(t, strings.HasPrefix(line, `{"timestamp":"2024-01-01T00:00:00","ticker":"600519","price":null,"data":`))
}

func TestStorageIOError(t *testing.T) {
	dir := t.TempDir()
	// The log path is a directory, so opening it for append fails.
	path := filepath.Join(dir, "history.jsonl")
	require.NoError(t, os.Mkdir(path, 0o755))
	s, err := Open(path)
	require.NoError(t, err)

	_, err = s.Append(context.Background(), "AAPL", nil, nil, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStorageIO))
	var sio *StorageIOError
	require.True(t, errors.As(err, &sio))
	assert.Equal(t, path, sio.Path)
}

func TestConcurrentWritersKeepOneRecordPerReplacedTicker(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := s.Replace(ctx, fmt.Sprintf("T%d", i%4), map[string]any{"i": float64(i)}, nil, "")
			assert.NoError(t, err)
		}(i)
		go func(i int) {
			defer wg.Done()
			_, err := s.Append(ctx, "LOG", map[string]any{"i": float64(i)}, nil, "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 4; i++ {
		got, err := s.Load(ctx, fmt.Sprintf("T%d", i))
		require.NoError(t, err)
		assert.Len(t, got, 1)
	}
	logs, err := s.Load(ctx, "LOG")
	require.NoError(t, err)
	assert.Len(t, logs, 8)
}

func TestObserver(t *testing.T) {
	var modes []string
	s, err := Open(filepath.Join(t.TempDir(), "h.jsonl"), WithObserver(func(mode string, err error) {
		modes = append(modes, mode)
	}))
	require.NoError(t, err)
	_, _ = s.Append(context.Background(), "A", nil, nil, "")
	_, _ = s.Replace(context.Background(), "A", nil, nil, "")
	assert.Equal(t, []string{ModeAppend, ModeReplace}, modes)
}
