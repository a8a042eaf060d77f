package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"alphaseeker/internal/history"

	"github.com/tidwall/gjson"
)

// TimestampLayout is ISO-8601 local time with microseconds, the format the
// existing history files use.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Record is one line of the ledger.
type Record struct {
	Timestamp string         `json:"timestamp" yaml:"timestamp"`
	Ticker    string         `json:"ticker" yaml:"ticker"`
	Price     *float64       `json:"price" yaml:"price"`
	Data      map[string]any `json:"data" yaml:"data"`
}

// decodeRecord parses one line and applies the read-side compatibility
// rules: missing price becomes null, a non-string timestamp keeps its literal
// text and the ticker is cross-filled between the record and data.
func decodeRecord(line []byte) (Record, error) {
	if !gjson.ValidBytes(line) {
		return Record{}, errors.New("invalid JSON")
	}
	doc := gjson.ParseBytes(line)
	if !doc.IsObject() {
		return Record{}, fmt.Errorf("expected an object, got %s", doc.Type)
	}
	rec := Record{Timestamp: literalText(doc.Get("timestamp"))}
	// Non-string tickers are treated as absent.
	if t := doc.Get("ticker"); t.Type == gjson.String {
		rec.Ticker = t.Str
	}
	switch p := doc.Get("price"); p.Type {
	case gjson.Null:
	case gjson.Number:
		v := p.Float()
		if math.IsInf(v, 0) {
			return Record{}, fmt.Errorf("price out of range: %s", p.Raw)
		}
		rec.Price = &v
	default:
		return Record{}, fmt.Errorf("price: unexpected %s %s", p.Type, p.Raw)
	}
	if d := doc.Get("data"); d.IsObject() {
		if err := json.Unmarshal([]byte(d.Raw), &rec.Data); err != nil {
			return Record{}, fmt.Errorf("data: %w", err)
		}
	}
	crossFillTicker(&rec)
	return rec, nil
}

// literalText is the string value of r, or the JSON text of a number.
func literalText(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return r.Raw
	default:
		return ""
	}
}

func crossFillTicker(rec *Record) {
	if rec.Data == nil {
		return
	}
	dataTicker := history.TickerOf(rec.Data)
	if dataTicker == "" && rec.Ticker != "" {
		rec.Data[history.KeyTicker] = rec.Ticker
	}
	if rec.Ticker == "" && dataTicker != "" {
		rec.Ticker = dataTicker
	}
}

func encodeRecord(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	// Encoder terminates with exactly one '\n'.
	return buf.Bytes(), nil
}

var errEmptyTicker = errors.New("ticker must not be empty")
