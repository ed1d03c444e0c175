// Package models defines the core domain entities: instrument records,
// snapshots, and the intraday time series they form.
package models

import (
	"errors"
	"maps"
	"time"
)

// InstrumentRecord is one instrument's row from a parsed spreadsheet snapshot.
// Symbol is normalized (see NormalizeSymbol). Rank is the 1-based position of
// the row in the source sheet. Records are treated as immutable once created;
// use Clone before handing one across a package boundary that may mutate it.
type InstrumentRecord struct {
	Symbol     string             `json:"symbol"`
	Rank       int                `json:"rank"`
	Metrics    map[string]float64 `json:"metrics"`
	CapturedAt time.Time          `json:"captured_at"`
}

// Validate checks record field constraints.
func (r *InstrumentRecord) Validate() error {
	if r.Symbol == "" {
		return errors.New("instrument symbol must not be empty")
	}
	if r.Rank < 1 {
		return errors.New("instrument rank must be >= 1")
	}
	if r.CapturedAt.IsZero() {
		return errors.New("captured at must be set")
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r InstrumentRecord) Clone() InstrumentRecord {
	out := r
	out.Metrics = maps.Clone(r.Metrics)
	return out
}

// Metric returns the named metric value, or false if the source sheet did not
// carry it for this instrument.
func (r *InstrumentRecord) Metric(name string) (float64, bool) {
	v, ok := r.Metrics[name]
	return v, ok
}
