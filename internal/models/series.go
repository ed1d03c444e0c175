package models

import (
	"errors"
	"fmt"
	"time"
)

// DayFormat is the date layout used to key daily series.
const DayFormat = "2006-01-02"

// Snapshot is the ordered set of instrument records captured at one cycle.
// Symbols are unique within a snapshot (duplicates are collapsed by the
// processor before a Snapshot is built).
type Snapshot struct {
	CapturedAt time.Time          `json:"captured_at"`
	SourceFile string             `json:"source_file"`
	Records    []InstrumentRecord `json:"records"`
}

// Record returns the record for a normalized symbol, if present.
func (s *Snapshot) Record(symbol string) (InstrumentRecord, bool) {
	for i := range s.Records {
		if s.Records[i].Symbol == symbol {
			return s.Records[i], true
		}
	}
	return InstrumentRecord{}, false
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Records = make([]InstrumentRecord, len(s.Records))
	for i := range s.Records {
		out.Records[i] = s.Records[i].Clone()
	}
	return out
}

// DailyTimeSeries is the append-only sequence of snapshots for one trading
// day. Snapshots are strictly ordered by capture timestamp and no two share a
// timestamp. The processor is the sole writer; readers get clones.
type DailyTimeSeries struct {
	Day       string     `json:"day"`
	Snapshots []Snapshot `json:"snapshots"`
}

// NewDailyTimeSeries creates an empty series for the given date.
func NewDailyTimeSeries(day time.Time) *DailyTimeSeries {
	return &DailyTimeSeries{Day: day.Format(DayFormat)}
}

// Len returns the number of snapshots appended so far.
func (ts *DailyTimeSeries) Len() int { return len(ts.Snapshots) }

// Baseline returns the first snapshot of the day, or nil if none.
func (ts *DailyTimeSeries) Baseline() *Snapshot {
	if len(ts.Snapshots) == 0 {
		return nil
	}
	return &ts.Snapshots[0]
}

// Latest returns the most recent snapshot, or nil if none.
func (ts *DailyTimeSeries) Latest() *Snapshot {
	if len(ts.Snapshots) == 0 {
		return nil
	}
	return &ts.Snapshots[len(ts.Snapshots)-1]
}

// Append adds a snapshot to the end of the series. It rejects empty
// snapshots, snapshots from another day, and snapshots that do not strictly
// advance the capture timestamp, leaving the series untouched in every
// failure case.
func (ts *DailyTimeSeries) Append(snap Snapshot) error {
	if len(snap.Records) == 0 {
		return errors.New("refusing to append empty snapshot")
	}
	if day := snap.CapturedAt.Format(DayFormat); day != ts.Day {
		return fmt.Errorf("snapshot day %s does not match series day %s", day, ts.Day)
	}
	if last := ts.Latest(); last != nil && !snap.CapturedAt.After(last.CapturedAt) {
		return fmt.Errorf("snapshot at %s does not advance series past %s",
			snap.CapturedAt.Format(time.RFC3339), last.CapturedAt.Format(time.RFC3339))
	}
	ts.Snapshots = append(ts.Snapshots, snap)
	return nil
}

// LastKnown returns the most recent record for a symbol anywhere in the
// series. Instruments that drop out of later snapshots retain their last
// observed values.
func (ts *DailyTimeSeries) LastKnown(symbol string) (InstrumentRecord, bool) {
	for i := len(ts.Snapshots) - 1; i >= 0; i-- {
		if rec, ok := ts.Snapshots[i].Record(symbol); ok {
			return rec, true
		}
	}
	return InstrumentRecord{}, false
}

// History returns every observation of a symbol for the day, oldest first.
func (ts *DailyTimeSeries) History(symbol string) []InstrumentRecord {
	var out []InstrumentRecord
	for i := range ts.Snapshots {
		if rec, ok := ts.Snapshots[i].Record(symbol); ok {
			out = append(out, rec)
		}
	}
	return out
}

// Symbols returns the set of all symbols observed today, in first-seen order.
func (ts *DailyTimeSeries) Symbols() []string {
	seen := make(map[string]struct{})
	var out []string
	for i := range ts.Snapshots {
		for j := range ts.Snapshots[i].Records {
			sym := ts.Snapshots[i].Records[j].Symbol
			if _, ok := seen[sym]; !ok {
				seen[sym] = struct{}{}
				out = append(out, sym)
			}
		}
	}
	return out
}

// Clone returns a deep copy of the series.
func (ts *DailyTimeSeries) Clone() *DailyTimeSeries {
	out := &DailyTimeSeries{Day: ts.Day, Snapshots: make([]Snapshot, len(ts.Snapshots))}
	for i := range ts.Snapshots {
		out.Snapshots[i] = ts.Snapshots[i].Clone()
	}
	return out
}
