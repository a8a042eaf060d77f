// Package ledger persists analysis records as newline-delimited JSON.
//
// Appends add one line. Replace rewrites the whole file through a temp file
// and a rename, so readers see either the old or the new file. One
// RWMutex serializes writers against each other and against readers.
package ledger

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"alphaseeker/internal/logger"
)

const (
	ModeAppend  = "append"
	ModeReplace = "replace"
)

// WriteObserver is told about every write attempt (for metrics).
type WriteObserver func(mode string, err error)

type Store struct {
	path     string
	mu       sync.RWMutex
	now      func() time.Time
	observer WriteObserver
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithObserver(fn WriteObserver) Option {
	return func(s *Store) { s.observer = fn }
}

// Open prepares a store at path. The parent directory is created; the file
// itself appears on first write.
func Open(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ioErr("mkdir", path, err)
	}
	s := &Store{path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) newRecord(ticker string, data map[string]any, price *float64, timestamp string) (Record, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return Record{}, errEmptyTicker
	}
	if price != nil && (math.IsNaN(*price) || math.IsInf(*price, 0)) {
		return Record{}, fmt.Errorf("price must be finite, got %v", *price)
	}
	if strings.TrimSpace(timestamp) == "" {
		timestamp = s.now().Format(TimestampLayout)
	}
	if data == nil {
		data = map[string]any{}
	}
	return Record{Timestamp: timestamp, Ticker: ticker, Price: price, Data: data}, nil
}

// Append writes one new record and leaves every existing line untouched.
func (s *Store) Append(ctx context.Context, ticker string, data map[string]any, price *float64, timestamp string) (rec Record, err error) {
	defer func() { s.observe(ModeAppend, err) }()
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec, err = s.newRecord(ticker, data, price, timestamp)
	if err != nil {
		return Record{}, err
	}
	line, err := encodeRecord(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return Record{}, ioErr("open", s.path, err)
	}
	terminated, err := endsWithNewline(f)
	if err != nil {
		_ = f.Close()
		return Record{}, ioErr("read tail", s.path, err)
	}
	if !terminated {
		line = append([]byte{'\n'}, line...)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return Record{}, ioErr("append", s.path, err)
	}
	if err := f.Close(); err != nil {
		return Record{}, ioErr("close", s.path, err)
	}
	logger.Debugf("[ledger] appended ticker=%s ts=%s", rec.Ticker, rec.Timestamp)
	return rec, nil
}

// endsWithNewline reports whether f is empty or its last byte is '\n'.
func endsWithNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return true, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] == '\n', nil
}

// Replace drops every record of ticker and appends the new one. Lines of
// other tickers are copied byte for byte in their original order; unreadable
// lines are dropped.
func (s *Store) Replace(ctx context.Context, ticker string, data map[string]any, price *float64, timestamp string) (rec Record, err error) {
	defer func() { s.observe(ModeReplace, err) }()
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec, err = s.newRecord(ticker, data, price, timestamp)
	if err != nil {
		return Record{}, err
	}
	line, err := encodeRecord(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var kept bytes.Buffer
	removed := 0
	err = s.scan(func(raw []byte, existing Record, ok bool) {
		if !ok {
			return
		}
		if existing.Ticker == rec.Ticker {
			removed++
			return
		}
		kept.Write(raw)
		kept.WriteByte('\n')
	})
	if err != nil {
		return Record{}, err
	}
	kept.Write(line)
	if err := s.writeAtomic(kept.Bytes()); err != nil {
		return Record{}, err
	}
	logger.Infof("[ledger] replaced ticker=%s removed=%d ts=%s", rec.Ticker, removed, rec.Timestamp)
	return rec, nil
}

func (s *Store) writeAtomic(content []byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return ioErr("create temp", dir, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		cleanup()
		return ioErr("write temp", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return ioErr("sync temp", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return ioErr("close temp", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return ioErr("chmod temp", tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return ioErr("rename", s.path, err)
	}
	return nil
}

// Load returns records newest first, optionally only those of ticker.
func (s *Store) Load(ctx context.Context, ticker string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ticker = strings.TrimSpace(ticker)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0)
	err := s.scan(func(_ []byte, rec Record, ok bool) {
		if !ok {
			return
		}
		if ticker != "" && rec.Ticker != ticker {
			return
		}
		out = append(out, rec)
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Latest returns the newest record (of ticker, when given).
func (s *Store) Latest(ctx context.Context, ticker string) (Record, bool, error) {
	records, err := s.Load(ctx, ticker)
	if err != nil {
		return Record{}, false, err
	}
	if len(records) == 0 {
		return Record{}, false, nil
	}
	return records[0], true, nil
}

// Tickers returns the distinct non-empty tickers, sorted.
func (s *Store) Tickers(ctx context.Context) ([]string, error) {
	records, err := s.Load(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0)
	for _, r := range records {
		if r.Ticker == "" {
			continue
		}
		if _, dup := seen[r.Ticker]; dup {
			continue
		}
		seen[r.Ticker] = struct{}{}
		out = append(out, r.Ticker)
	}
	sort.Strings(out)
	return out, nil
}

// scan walks the file line by line. Blank lines are ignored; lines that do
// not decode are reported with ok=false and logged. A missing file is empty.
// Callers must hold s.mu.
func (s *Store) scan(fn func(raw []byte, rec Record, ok bool)) error {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return ioErr("open", s.path, err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	lineNo := 0
	for {
		raw, readErr := reader.ReadBytes('\n')
		if len(raw) > 0 {
			lineNo++
			raw = bytes.TrimSpace(raw)
			if len(raw) > 0 {
				if rec, err := decodeRecord(raw); err != nil {
					logger.Warnf("[ledger] skipping malformed line %d in %s: %v", lineNo, s.path, err)
					fn(raw, Record{}, false)
				} else {
					fn(raw, rec, true)
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return ioErr("read", s.path, readErr)
		}
	}
}

func (s *Store) observe(mode string, err error) {
	if s.observer != nil {
		s.observer(mode, err)
	}
}
