package process

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"oispurts/internal/fetch"
	"oispurts/internal/logger"
	"oispurts/internal/models"
	"oispurts/internal/store"
)

// Tracker owns the day's time series. The scheduler goroutine is the sole
// writer (Process); every read method takes a consistent view under RLock and
// returns clones, so the bot consumer never observes a partial append.
type Tracker struct {
	store *store.Store
	now   func() time.Time

	mu     sync.RWMutex
	series *models.DailyTimeSeries

	statsMu   sync.Mutex
	startedAt time.Time
	succeeded int
	failed    int
	dropped   int
}

// NewTracker creates a Tracker bound to a store.
func NewTracker(st *store.Store) *Tracker {
	now := time.Now
	return &Tracker{
		store:     st,
		now:       now,
		series:    models.NewDailyTimeSeries(now()),
		startedAt: now(),
	}
}

// Restore reloads today's persisted series so a restart mid-session keeps the
// morning baseline.
func (t *Tracker) Restore() error {
	day := t.now().Format(models.DayFormat)
	series, err := t.store.LoadDay(day)
	if err != nil {
		return fmt.Errorf("failed to restore day %s: %w", day, err)
	}
	t.mu.Lock()
	t.series = series
	t.mu.Unlock()
	if series.Len() > 0 {
		logger.Info("restored %d snapshot(s) for %s", series.Len(), day)
	}
	return nil
}

// Process parses a raw snapshot file, merges it into the day's series, and
// persists the result. The raw content is saved for audit before parsing so
// failed parses remain replayable. Returns the appended snapshot.
//
// Failure modes: *ParseError and ErrNoData leave the series untouched;
// persistence failures roll the in-memory append back and are returned
// wrapped (the caller treats them as hard failures).
func (t *Tracker) Process(raw *fetch.RawSnapshotFile) (models.Snapshot, error) {
	sourceFile, err := t.store.SaveRaw(raw.CapturedAt, string(raw.Format), raw.Content)
	if err != nil {
		return models.Snapshot{}, &PersistenceError{Err: err}
	}

	snap, stats, err := ParseSnapshot(raw)
	if err != nil {
		return models.Snapshot{}, err
	}
	snap.SourceFile = sourceFile

	t.statsMu.Lock()
	t.dropped += stats.Dropped
	t.statsMu.Unlock()
	if stats.Dropped > 0 || stats.Duplicates > 0 {
		logger.Debug("parsed %d rows: %d dropped, %d duplicates collapsed",
			stats.TotalRows, stats.Dropped, stats.Duplicates)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Date rollover: the first snapshot of a new day starts a fresh series.
	if day := snap.CapturedAt.Format(models.DayFormat); day != t.series.Day {
		logger.Info("date rolled over from %s to %s, starting fresh series", t.series.Day, day)
		t.series = &models.DailyTimeSeries{Day: day}
	}

	if err := t.series.Append(snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("append rejected: %w", err)
	}
	if err := t.store.AppendSnapshot(t.series.Day, snap); err != nil {
		t.series.Snapshots = t.series.Snapshots[:t.series.Len()-1]
		return models.Snapshot{}, &PersistenceError{Err: err}
	}
	return snap, nil
}

// RecordOutcome updates cycle counters for the status report.
func (t *Tracker) RecordOutcome(err error) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	if err != nil {
		t.failed++
	} else {
		t.succeeded++
	}
}

// Latest returns a copy of the most recent snapshot, or nil before the first
// successful cycle of the day.
func (t *Tracker) Latest() *models.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	last := t.series.Latest()
	if last == nil {
		return nil
	}
	snap := last.Clone()
	return &snap
}

// Series returns a copy of today's full series.
func (t *Tracker) Series() *models.DailyTimeSeries {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.series.Clone()
}

// SeriesForDay reads a persisted series by date (YYYY-MM-DD). Today's series
// is served from memory; earlier days come from the store.
func (t *Tracker) SeriesForDay(day string) (*models.DailyTimeSeries, error) {
	t.mu.RLock()
	if day == t.series.Day {
		defer t.mu.RUnlock()
		return t.series.Clone(), nil
	}
	t.mu.RUnlock()
	return t.store.LoadDay(day)
}

// Delta computes one instrument's change in the requested mode against
// today's series.
func (t *Tracker) Delta(symbol string, mode models.DeltaMode) (models.InstrumentDelta, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.series.Delta(models.NormalizeSymbol(symbol), mode)
}

// History returns every observation of an instrument today, oldest first.
func (t *Tracker) History(symbol string) []models.InstrumentRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	recs := t.series.History(models.NormalizeSymbol(symbol))
	out := make([]models.InstrumentRecord, len(recs))
	for i := range recs {
		out[i] = recs[i].Clone()
	}
	return out
}

// Search finds an instrument by exact, then prefix, then substring match and
// returns its last known record.
func (t *Tracker) Search(query string) (models.InstrumentRecord, bool) {
	q := models.NormalizeSymbol(query)
	if q == "" {
		return models.InstrumentRecord{}, false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if rec, ok := t.series.LastKnown(q); ok {
		return rec.Clone(), true
	}
	symbols := t.series.Symbols()
	for _, pass := range []func(string) bool{
		func(s string) bool { return strings.HasPrefix(s, q) },
		func(s string) bool { return strings.Contains(s, q) },
	} {
		for _, sym := range symbols {
			if pass(sym) {
				rec, _ := t.series.LastKnown(sym)
				return rec.Clone(), true
			}
		}
	}
	return models.InstrumentRecord{}, false
}

// Suggestions returns up to limit symbols containing the query, sorted.
func (t *Tracker) Suggestions(query string, limit int) []string {
	q := models.NormalizeSymbol(query)
	if q == "" {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []string
	for _, sym := range t.series.Symbols() {
		if strings.Contains(sym, q) {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Status is a point-in-time report of tracker health for the /status command.
type Status struct {
	Day              string
	SnapshotCount    int
	InstrumentCount  int
	SuccessfulCycles int
	FailedCycles     int
	DroppedRows      int
	LastUpdate       time.Time
	Uptime           time.Duration
}

// Status reports current tracker state.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	st := Status{
		Day:             t.series.Day,
		SnapshotCount:   t.series.Len(),
		InstrumentCount: len(t.series.Symbols()),
	}
	if last := t.series.Latest(); last != nil {
		st.LastUpdate = last.CapturedAt
	}
	t.mu.RUnlock()

	t.statsMu.Lock()
	st.SuccessfulCycles = t.succeeded
	st.FailedCycles = t.failed
	st.DroppedRows = t.dropped
	st.Uptime = t.now().Sub(t.startedAt)
	t.statsMu.Unlock()
	return st
}
