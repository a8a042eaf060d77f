package analysis

import (
	"context"
	"errors"

	"alphaseeker/internal/store/ledger"
)

var ErrInvalidInput = errors.New("invalid input")

// Metric is a user-defined north star metric passed through to prompts.
type Metric struct {
	Name         string `json:"name"`
	CurrentValue string `json:"current_value"`
	Unit         string `json:"unit"`
}

type AnalyzeRequest struct {
	Ticker        string   `json:"ticker"`
	Price         *float64 `json:"price" binding:"required"`
	CustomMetrics []Metric `json:"custom_metrics"`
}

type ChallengeRequest struct {
	Context      map[string]any `json:"context"`
	BearArgument string         `json:"bear_argument"`
}

type ReactRequest struct {
	OldContext        map[string]any `json:"old_context"`
	FinancialSnapshot map[string]any `json:"financial_snapshot"`
	CustomMetrics     []Metric       `json:"custom_metrics"`
	Price             *float64       `json:"price"`
}

// Ledger is the part of the history store the engine writes to.
type Ledger interface {
	Append(ctx context.Context, ticker string, data map[string]any, price *float64, timestamp string) (ledger.Record, error)
	Replace(ctx context.Context, ticker string, data map[string]any, price *float64, timestamp string) (ledger.Record, error)
}

// Temperatures per call purpose.
type Temperatures struct {
	Analyze   float64
	Challenge float64
	React     float64
}

func DefaultTemperatures() Temperatures {
	return Temperatures{Analyze: 0.7, Challenge: 0.8, React: 0.7}
}

const (
	PurposeAnalyze        = "analyze"
	PurposeChallenge      = "challenge"
	PurposeReactEarnings  = "react-earnings"
	PurposeReactValuation = "react-valuation"

	UnknownTicker = "UNKNOWN"
)
