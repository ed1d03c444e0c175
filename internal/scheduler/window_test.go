package scheduler

import (
	"testing"
	"time"
)

func mustWindow(t *testing.T, start, end string) Window {
	t.Helper()
	w, err := ParseWindow(start, end, "UTC")
	if err != nil {
		t.Fatalf("ParseWindow: %v", err)
	}
	return w
}

func TestWindow_Boundaries(t *testing.T) {
	w := mustWindow(t, "10:00", "14:30")
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		at   time.Time
		want bool
	}{
		{day.Add(9*time.Hour + 59*time.Minute + 59*time.Second), false},
		{day.Add(10 * time.Hour), true}, // open is inclusive
		{day.Add(12 * time.Hour), true},
		{day.Add(14*time.Hour + 29*time.Minute + 59*time.Second), true},
		{day.Add(14*time.Hour + 30*time.Minute), false}, // close is exclusive
		{day.Add(15 * time.Hour), false},
	}
	for _, tt := range tests {
		if got := w.Contains(tt.at); got != tt.want {
			t.Errorf("Contains(%s) = %v, want %v", tt.at.Format("15:04:05"), got, tt.want)
		}
	}
}

func TestWindow_NextOpen(t *testing.T) {
	w := mustWindow(t, "10:00", "14:30")
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	open := day.Add(10 * time.Hour)

	if got := w.NextOpen(day.Add(8 * time.Hour)); !got.Equal(open) {
		t.Errorf("NextOpen before open = %v, want %v", got, open)
	}
	// At or after open, the next open is tomorrow's.
	tomorrow := open.AddDate(0, 0, 1)
	if got := w.NextOpen(open); !got.Equal(tomorrow) {
		t.Errorf("NextOpen at open = %v, want %v", got, tomorrow)
	}
	if got := w.NextOpen(day.Add(16 * time.Hour)); !got.Equal(tomorrow) {
		t.Errorf("NextOpen after close = %v, want %v", got, tomorrow)
	}
}

func TestWindow_OtherTimezone(t *testing.T) {
	w, err := ParseWindow("10:00", "14:30", "Asia/Kolkata")
	if err != nil {
		t.Fatalf("ParseWindow: %v", err)
	}
	// 04:45 UTC is 10:15 IST.
	inside := time.Date(2026, 3, 2, 4, 45, 0, 0, time.UTC)
	if !w.Contains(inside) {
		t.Error("10:15 IST must be inside a 10:00-14:30 IST window")
	}
	// 17:00 UTC is 22:30 IST.
	outside := time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)
	if w.Contains(outside) {
		t.Error("22:30 IST must be outside the window")
	}
}

func TestParseWindow_Rejections(t *testing.T) {
	if _, err := ParseWindow("25:00", "14:30", "UTC"); err == nil {
		t.Error("expected error for invalid start")
	}
	if _, err := ParseWindow("14:30", "10:00", "UTC"); err == nil {
		t.Error("expected error for inverted window")
	}
	if _, err := ParseWindow("10:00", "14:30", "Mars/Olympus"); err == nil {
		t.Error("expected error for unknown timezone")
	}
}
