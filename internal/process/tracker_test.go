package process

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"oispurts/internal/fetch"
	"oispurts/internal/models"
	"oispurts/internal/sheet"
	"oispurts/internal/store"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	st, err := store.New(":memory:", t.TempDir(), 50)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewTracker(st)
}

func rawAt(at time.Time, content string) *fetch.RawSnapshotFile {
	return &fetch.RawSnapshotFile{
		Content:    []byte(content),
		Format:     sheet.FormatCSV,
		CapturedAt: at,
	}
}

func captureTime(tr *Tracker, offset time.Duration) time.Time {
	day, _ := time.Parse(models.DayFormat, tr.Series().Day)
	return day.Add(10*time.Hour + offset)
}

func TestTracker_ProcessAppendsAndPersists(t *testing.T) {
	tr := newTestTracker(t)
	at := captureTime(tr, 0)

	snap, err := tr.Process(rawAt(at, "SYMBOL,LATEST OI\nRELIANCE,1000\nTCS,500\n"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(snap.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(snap.Records))
	}
	if snap.SourceFile == "" {
		t.Error("snapshot should reference its raw audit file")
	}

	// Persisted copy matches the in-memory series.
	stored, err := tr.SeriesForDay(tr.Series().Day)
	if err != nil {
		t.Fatalf("SeriesForDay: %v", err)
	}
	if stored.Len() != 1 {
		t.Errorf("stored series has %d snapshots, want 1", stored.Len())
	}

	fresh := NewTracker(tr.store)
	fresh.now = func() time.Time { return at }
	if err := fresh.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if fresh.Series().Len() != 1 {
		t.Error("restored tracker lost the persisted snapshot")
	}
}

func TestTracker_ParseFailureLeavesSeriesUnchanged(t *testing.T) {
	tr := newTestTracker(t)
	at := captureTime(tr, 0)

	if _, err := tr.Process(rawAt(at, "SYMBOL,LATEST OI\nRELIANCE,1000\n")); err != nil {
		t.Fatalf("Process: %v", err)
	}
	before := tr.Series()

	_, err := tr.Process(rawAt(at.Add(20*time.Minute), "FOO,BAR\n1,2\n"))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}

	after := tr.Series()
	if after.Len() != before.Len() {
		t.Errorf("series length changed from %d to %d on failed cycle", before.Len(), after.Len())
	}
}

func TestTracker_DuplicateTimestampRejectedWithoutCorruption(t *testing.T) {
	tr := newTestTracker(t)
	at := captureTime(tr, 0)
	body := "SYMBOL,LATEST OI\nRELIANCE,1000\n"

	if _, err := tr.Process(rawAt(at, body)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if _, err := tr.Process(rawAt(at, body)); err == nil {
		t.Fatal("expected error for duplicate capture timestamp")
	}
	if tr.Series().Len() != 1 {
		t.Errorf("series length = %d, want 1", tr.Series().Len())
	}
	stored, _ := tr.SeriesForDay(tr.Series().Day)
	if stored.Len() != 1 {
		t.Errorf("stored length = %d, want 1", stored.Len())
	}
}

func TestTracker_BaselineDelta(t *testing.T) {
	tr := newTestTracker(t)
	at := captureTime(tr, 0)

	mustProcess(t, tr, rawAt(at, "SYMBOL,LATEST OI\nABC,100\n"))
	mustProcess(t, tr, rawAt(at.Add(20*time.Minute), "SYMBOL,LATEST OI\nABC,135\n"))

	d, err := tr.Delta("abc", models.DeltaBaseline)
	if err != nil {
		t.Fatalf("Delta: %v", err)
	}
	if d.Metrics["latest_oi"] != 35 {
		t.Errorf("baseline delta = %v, want +35", d.Metrics["latest_oi"])
	}
}

func TestTracker_DayRolloverStartsFreshSeries(t *testing.T) {
	tr := newTestTracker(t)
	at := captureTime(tr, 0)

	mustProcess(t, tr, rawAt(at, "SYMBOL,LATEST OI\nABC,100\n"))
	day1 := tr.Series().Day

	nextDay := at.Add(24 * time.Hour)
	mustProcess(t, tr, rawAt(nextDay, "SYMBOL,LATEST OI\nABC,50\n"))

	cur := tr.Series()
	if cur.Day == day1 {
		t.Fatal("series day did not roll over")
	}
	if cur.Len() != 1 {
		t.Errorf("new series has %d snapshots, want 1", cur.Len())
	}
	// The previous day stays addressable in the store.
	old, err := tr.SeriesForDay(day1)
	if err != nil {
		t.Fatalf("SeriesForDay(%s): %v", day1, err)
	}
	if old.Len() != 1 {
		t.Errorf("previous day lost: %d snapshots", old.Len())
	}
	d, err := tr.Delta("ABC", models.DeltaBaseline)
	if err != nil {
		t.Fatalf("Delta: %v", err)
	}
	if d.Metrics["latest_oi"] != 0 {
		t.Errorf("delta after rollover = %v, want 0 (fresh baseline)", d.Metrics["latest_oi"])
	}
}

func TestTracker_SearchAndSuggestions(t *testing.T) {
	tr := newTestTracker(t)
	at := captureTime(tr, 0)
	mustProcess(t, tr, rawAt(at,
		"SYMBOL,LATEST OI\nRELIANCE,100\nRELCAPITAL,90\nTCS,80\n"))

	if rec, ok := tr.Search("reliance"); !ok || rec.Symbol != "RELIANCE" {
		t.Errorf("exact search failed: %+v %v", rec, ok)
	}
	if rec, ok := tr.Search("REL"); !ok || rec.Symbol != "RELIANCE" {
		t.Errorf("prefix search should return first match in sheet order, got %+v", rec)
	}
	if _, ok := tr.Search("ZZZ"); ok {
		t.Error("search for unknown symbol must fail")
	}

	sugg := tr.Suggestions("REL", 10)
	if len(sugg) != 2 || sugg[0] != "RELCAPITAL" || sugg[1] != "RELIANCE" {
		t.Errorf("Suggestions = %v, want sorted [RELCAPITAL RELIANCE]", sugg)
	}
}

func TestTracker_Status(t *testing.T) {
	tr := newTestTracker(t)
	at := captureTime(tr, 0)

	mustProcess(t, tr, rawAt(at, "SYMBOL,LATEST OI\nRELIANCE,100\n,5\n"))
	tr.RecordOutcome(nil)
	tr.RecordOutcome(fmt.Errorf("boom"))

	st := tr.Status()
	if st.SnapshotCount != 1 || st.InstrumentCount != 1 {
		t.Errorf("status counts = %+v", st)
	}
	if st.SuccessfulCycles != 1 || st.FailedCycles != 1 {
		t.Errorf("cycle counters = %+v", st)
	}
	if st.DroppedRows != 1 {
		t.Errorf("dropped rows = %d, want 1", st.DroppedRows)
	}
	if !st.LastUpdate.Equal(at) {
		t.Errorf("last update = %v, want %v", st.LastUpdate, at)
	}
}

func mustProcess(t *testing.T, tr *Tracker, raw *fetch.RawSnapshotFile) {
	t.Helper()
	if _, err := tr.Process(raw); err != nil {
		t.Fatalf("Process: %v", err)
	}
}
