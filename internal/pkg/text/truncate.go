package text

import "unicode/utf8"

// Truncate cuts s to at most max characters and appends "..." when something
// was cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return Head(s, max) + "..."
}

// Head returns the first n characters of s (runes, not bytes).
func Head(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
