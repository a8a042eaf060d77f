package jsonutil

import (
	"regexp"
	"strings"
)

const codeFence = "```"

var (
	leadingFence  = regexp.MustCompile("^```[A-Za-z0-9_+-]*\\s*")
	trailingFence = regexp.MustCompile("\\s*```$")
	greedySpan    = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)
)

// StripFence removes one leading fence marker (with optional language tag) and
// one trailing fence marker. Text without fences is returned trimmed.
func StripFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = leadingFence.ReplaceAllString(cleaned, "")
	cleaned = trailingFence.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// FencedBlock returns the body of the first complete fenced block in raw,
// dropping a language tag line such as "json".
func FencedBlock(raw string) (string, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], " \t\r\n")
	if idx := strings.Index(block, "\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
		}
	} else if !strings.ContainsAny(block, "[{") {
		return "", false
	}
	block = strings.TrimSpace(block)
	if block == "" {
		return "", false
	}
	return block, true
}

// GreedySpan returns the widest candidate starting at the first '{' or '['
// and ending at the last matching closer.
func GreedySpan(raw string) (string, bool) {
	m := greedySpan.FindString(raw)
	if m == "" {
		return "", false
	}
	return m, true
}

// EachBalanced calls fn with every balanced object or array span, in order of
// its opening position. Brackets inside JSON strings are ignored. Iteration
// stops when fn returns false.
//
// Each scan also settles every opener it passes outside a string, so an
// opener is scanned from at most once per string context.
func EachBalanced(raw string, fn func(span string) bool) {
	ends := make(map[int]int)
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' && raw[i] != '[' {
			continue
		}
		end, seen := ends[i]
		if !seen {
			end = scanBalanced(raw, i, ends)
		}
		if end < 0 {
			continue
		}
		if !fn(raw[i : end+1]) {
			return
		}
	}
}

type opener struct {
	closer byte
	pos    int
}

// scanBalanced returns the index closing the bracket at start, or -1. It
// records in ends the closing index of every bracket popped on the way and
// -1 for every bracket still open when the scan fails.
func scanBalanced(raw string, start int, ends map[int]int) int {
	stack := make([]opener, 0, 8)
	fail := func() int {
		for _, o := range stack {
			ends[o.pos] = -1
		}
		return -1
	}
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			switch ch {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, opener{closer: '}', pos: i})
		case '[':
			stack = append(stack, opener{closer: ']', pos: i})
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1].closer != ch {
				return fail()
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			ends[top.pos] = i
			if len(stack) == 0 {
				return i
			}
		}
	}
	return fail()
}
