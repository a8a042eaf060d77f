package app

import (
	"fmt"
	"strings"

	"alphaseeker/internal/logger"
)

type StartupSummary struct {
	Addr        string
	Provider    string
	Model       string
	HistoryPath string
	TracePath   string
	PromptDir   string
	ReactMode   string
	Metrics     bool
}

func (s *StartupSummary) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", 60) + "\n")
	b.WriteString("AlphaSeeker startup summary\n")
	b.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&b, "  http:     %s\n", s.Addr)
	fmt.Fprintf(&b, "  model:    %s/%s\n", s.Provider, s.Model)
	fmt.Fprintf(&b, "  history:  %s (react_mode=%s)\n", s.HistoryPath, s.ReactMode)
	fmt.Fprintf(&b, "  trace db: %s\n", orDash(s.TracePath))
	fmt.Fprintf(&b, "  prompts:  %s (built-ins as fallback)\n", orDash(s.PromptDir))
	fmt.Fprintf(&b, "  metrics:  %t\n", s.Metrics)
	b.WriteString(strings.Repeat("=", 60))
	return b.String()
}

func (s *StartupSummary) Print() {
	logger.InfoBlock(s.String())
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
