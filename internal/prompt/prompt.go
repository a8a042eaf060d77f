// Package prompt loads the system prompt templates and fills their
// {placeholder} slots.
package prompt

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"alphaseeker/internal/logger"

	"github.com/fsnotify/fsnotify"
)

const (
	Analyze        = "analyze.txt"
	Challenge      = "challenge.txt"
	ReactEarnings  = "react_earnings.txt"
	ReactValuation = "react_valuation.txt"
)

//go:embed templates/*.txt
var builtin embed.FS

var ErrTemplate = errors.New("prompt template error")

// TemplateError reports a template that could not be loaded or rendered.
type TemplateError struct {
	Name        string
	Placeholder string
	Err         error
}

func (e *TemplateError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("prompt %s: placeholder {%s}: %v", e.Name, e.Placeholder, e.Err)
	}
	return fmt.Sprintf("prompt %s: %v", e.Name, e.Err)
}

func (e *TemplateError) Unwrap() []error {
	return []error{ErrTemplate, e.Err}
}

var errMissingValue = errors.New("no value supplied")

// Loader reads templates from Dir, falling back to the built-in copies.
// Loaded text is cached until Invalidate or a watched file changes.
type Loader struct {
	dir string

	mu    sync.RWMutex
	cache map[string]string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: strings.TrimSpace(dir), cache: make(map[string]string)}
}

func (l *Loader) Dir() string { return l.dir }

// Load returns the raw text of the named template.
func (l *Loader) Load(name string) (string, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." {
		return "", &TemplateError{Name: name, Err: errors.New("empty template name")}
	}
	l.mu.RLock()
	txt, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return txt, nil
	}

	txt, err := l.read(name)
	if err != nil {
		return "", &TemplateError{Name: name, Err: err}
	}
	l.mu.Lock()
	l.cache[name] = txt
	l.mu.Unlock()
	return txt, nil
}

func (l *Loader) read(name string) (string, error) {
	if l.dir != "" {
		data, err := os.ReadFile(filepath.Join(l.dir, name))
		if err == nil {
			return string(data), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	data, err := builtin.ReadFile("templates/" + name)
	if err != nil {
		return "", fmt.Errorf("template not found in %q or built-ins", l.dir)
	}
	return string(data), nil
}

// Render loads name and substitutes vars into it.
func (l *Loader) Render(name string, vars map[string]string) (string, error) {
	tpl, err := l.Load(name)
	if err != nil {
		return "", err
	}
	out, err := Format(tpl, vars)
	if err != nil {
		var te *TemplateError
		if errors.As(err, &te) {
			te.Name = filepath.Base(name)
		}
		return "", err
	}
	return out, nil
}

// Invalidate drops one cached template, or all of them when name is empty.
func (l *Loader) Invalidate(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if name == "" {
		l.cache = make(map[string]string)
		return
	}
	delete(l.cache, filepath.Base(name))
}

// Watch invalidates cached templates when their files change. It blocks
// until ctx is done.
func (l *Loader) Watch(ctx context.Context) error {
	if l.dir == "" {
		return nil
	}
	if _, err := os.Stat(l.dir); err != nil {
		logger.Warnf("[prompt] watch skipped: %v", err)
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(l.dir); err != nil {
		return err
	}
	logger.Infof("[prompt] watching %s", l.dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			l.Invalidate(evt.Name)
			logger.Infof("[prompt] reloaded %s (%s)", filepath.Base(evt.Name), evt.Op)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("[prompt] watcher error: %v", err)
		}
	}
}

// Format replaces {name} with vars[name]. "{{" and "}}" produce literal
// braces. Unknown placeholders and unbalanced braces are errors.
func Format(tpl string, vars map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tpl))
	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch c {
		case '{':
			if i+1 < len(tpl) && tpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				return "", &TemplateError{Err: fmt.Errorf("unclosed '{' at offset %d", i)}
			}
			name := tpl[i+1 : i+1+end]
			if !isIdent(name) {
				return "", &TemplateError{Placeholder: name, Err: errors.New("invalid placeholder name")}
			}
			v, ok := vars[name]
			if !ok {
				return "", &TemplateError{Placeholder: name, Err: errMissingValue}
			}
			b.WriteString(v)
			i += end + 1
		case '}':
			if i+1 < len(tpl) && tpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", &TemplateError{Err: fmt.Errorf("single '}' at offset %d", i)}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
