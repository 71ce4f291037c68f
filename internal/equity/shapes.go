package equity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The equity endpoints answer in two generations. The current overview
// endpoint returns either a multi-model aggregate or a per-model series
// map; the legacy endpoint returns a flat point list with pre-computed
// stats. Shape discrimination happens in one place (probe) from the
// presence of distinguishing fields, never ad hoc in the reconcile logic.

// OverviewResponse is the current-generation payload.
type OverviewResponse struct {
	Error           string           `json:"error,omitempty"`
	Aggregate       *Aggregate       `json:"aggregate,omitempty"`
	AggregateSeries []AggregatePoint `json:"aggregate_series,omitempty"`
	// Series maps model key -> points. Kept raw so the reconciler can
	// select the first key in JSON insertion order, which encoding/json's
	// map decoding would not preserve.
	Series json.RawMessage `json:"series,omitempty"`
	Models []string        `json:"models,omitempty"`
}

// Aggregate carries the cross-model totals.
type Aggregate struct {
	TotalEquity float64 `json:"total_equity"`
}

// AggregatePoint is one aggregate sample: a timestamp plus one numeric
// balance component per model. Components are summed to form the canonical
// series.
type AggregatePoint struct {
	Timestamp  time.Time
	Components map[string]float64
}

func (p *AggregatePoint) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.Components = make(map[string]float64, len(raw))
	for k, v := range raw {
		switch k {
		case "timestamp", "ts", "time":
			t, err := parseStamp(v)
			if err != nil {
				return fmt.Errorf("aggregate point timestamp: %w", err)
			}
			p.Timestamp = t
		default:
			var f float64
			if err := json.Unmarshal(v, &f); err == nil {
				p.Components[k] = f
			}
			// non-numeric fields (labels etc.) are not balance components
		}
	}
	return nil
}

// Total sums the point's balance components.
func (p AggregatePoint) Total() float64 {
	var sum float64
	for _, v := range p.Components {
		sum += v
	}
	return sum
}

// SeriesPoint is one sample of a per-model series.
type SeriesPoint struct {
	Timestamp time.Time
	Balance   float64
}

func (p *SeriesPoint) UnmarshalJSON(b []byte) error {
	var raw struct {
		Timestamp   json.RawMessage `json:"timestamp"`
		Balance     *float64        `json:"balance"`
		TotalEquity *float64        `json:"total_equity"`
		Equity      *float64        `json:"equity"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Timestamp != nil {
		t, err := parseStamp(raw.Timestamp)
		if err != nil {
			return fmt.Errorf("series point timestamp: %w", err)
		}
		p.Timestamp = t
	}
	switch {
	case raw.Balance != nil:
		p.Balance = *raw.Balance
	case raw.TotalEquity != nil:
		p.Balance = *raw.TotalEquity
	case raw.Equity != nil:
		p.Balance = *raw.Equity
	}
	return nil
}

// LegacyResponse is the previous-generation payload. Its stats are trusted
// verbatim; see the reconciler.
type LegacyResponse struct {
	Success bool          `json:"success"`
	Stats   LegacyStats   `json:"stats"`
	Data    []SeriesPoint `json:"data"`
}

// LegacyStats mirrors the legacy endpoint's pre-computed summary.
type LegacyStats struct {
	InitialBalance float64 `json:"initial_balance"`
	CurrentBalance float64 `json:"current_balance"`
	MaxBalance     float64 `json:"max_balance"`
	MinBalance     float64 `json:"min_balance"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	TotalReturn    float64 `json:"total_return"`
}

// overviewShape is the discriminant of the overview tagged union.
type overviewShape int

const (
	shapeUnknown overviewShape = iota
	shapeError
	shapeAggregate
	shapeModelMap
)

// probe classifies an overview response by structural inspection.
func probe(ov *OverviewResponse) overviewShape {
	switch {
	case ov == nil:
		return shapeUnknown
	case ov.Error != "":
		return shapeError
	case ov.Aggregate != nil && len(ov.AggregateSeries) > 0:
		return shapeAggregate
	case len(ov.Series) > 0 && !bytes.Equal(ov.Series, []byte("null")) && !bytes.Equal(ov.Series, []byte("{}")):
		return shapeModelMap
	default:
		return shapeUnknown
	}
}

// firstModelSeries walks the raw series object with a token decoder and
// returns the first keyed series in insertion order.
func firstModelSeries(raw json.RawMessage) (string, []SeriesPoint, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return "", nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", nil, fmt.Errorf("series is not an object")
	}
	if !dec.More() {
		return "", nil, fmt.Errorf("series object is empty")
	}
	keyTok, err := dec.Token()
	if err != nil {
		return "", nil, err
	}
	key, ok := keyTok.(string)
	if !ok {
		return "", nil, fmt.Errorf("series key is not a string")
	}
	var points []SeriesPoint
	if err := dec.Decode(&points); err != nil {
		return "", nil, fmt.Errorf("series %q: %w", key, err)
	}
	return key, points, nil
}

// parseStamp accepts the timestamp spellings seen across both endpoint
// generations: RFC3339, zoneless ISO (with or without fractional seconds),
// and unix seconds or milliseconds.
func parseStamp(raw json.RawMessage) (time.Time, error) {
	s := strings.TrimSpace(string(raw))
	if len(s) >= 2 && s[0] == '"' {
		str := strings.Trim(s, `"`)
		for _, layout := range []string{
			time.RFC3339Nano,
			time.RFC3339,
			"2006-01-02T15:04:05.999999",
			"2006-01-02T15:04:05",
			"2006-01-02 15:04:05",
		} {
			if t, err := time.Parse(layout, str); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", str)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized timestamp %s", s)
	}
	// Heuristic: values past the year 33658 in seconds are milliseconds.
	if n > 1e12 {
		return time.UnixMilli(int64(n)), nil
	}
	return time.Unix(int64(n), 0), nil
}
