package models

import (
	"errors"
	"time"
)

// DeltaMode selects the reference snapshot for delta computation.
type DeltaMode string

const (
	// DeltaBaseline compares against the first snapshot of the day.
	DeltaBaseline DeltaMode = "baseline"
	// DeltaPrevious compares against the immediately preceding snapshot.
	DeltaPrevious DeltaMode = "previous"
)

// ErrNotObserved reports a symbol never seen in today's series.
var ErrNotObserved = errors.New("instrument not observed today")

// InstrumentDelta is the signed change of one instrument's metrics between a
// reference snapshot and the latest snapshot. Derived on demand, never stored.
type InstrumentDelta struct {
	Symbol     string             `json:"symbol"`
	Mode       DeltaMode          `json:"mode"`
	NewToday   bool               `json:"new_today"`
	RankChange int                `json:"rank_change"`
	Metrics    map[string]float64 `json:"metrics"`
	From       time.Time          `json:"from"`
	To         time.Time          `json:"to"`
}

// Delta computes the change for a symbol between the mode's reference
// snapshot and the symbol's most recent observation. An instrument absent
// from the reference is flagged NewToday with zero-valued changes.
func (ts *DailyTimeSeries) Delta(symbol string, mode DeltaMode) (InstrumentDelta, error) {
	cur, ok := ts.LastKnown(symbol)
	if !ok {
		return InstrumentDelta{}, ErrNotObserved
	}

	var ref *Snapshot
	switch mode {
	case DeltaPrevious:
		if n := len(ts.Snapshots); n >= 2 {
			ref = &ts.Snapshots[n-2]
		} else {
			ref = ts.Baseline()
		}
	default:
		ref = ts.Baseline()
	}

	d := InstrumentDelta{
		Symbol:  symbol,
		Mode:    mode,
		Metrics: make(map[string]float64, len(cur.Metrics)),
		To:      cur.CapturedAt,
	}

	refRec, ok := ref.Record(symbol)
	if !ok {
		d.NewToday = true
		d.From = ref.CapturedAt
		return d, nil
	}

	d.From = refRec.CapturedAt
	d.RankChange = cur.Rank - refRec.Rank
	for name, v := range cur.Metrics {
		if prev, ok := refRec.Metrics[name]; ok {
			d.Metrics[name] = v - prev
		}
	}
	return d, nil
}
