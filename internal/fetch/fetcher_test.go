package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"oispurts/internal/retry"
	"oispurts/internal/sheet"
)

const csvBody = "SYMBOL,LATEST OI,PREVIOUS OI\nRELIANCE,1200,1000\nTCS,800,900\n"

// newSourceServer simulates the source site: the data endpoint only serves
// content to sessions that hit the page URL first and carry its cookie.
func newSourceServer(t *testing.T, dataHandler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var warmups atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		warmups.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "session"})
		w.Write([]byte("<html>page</html>"))
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("nsit"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		dataHandler(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &warmups
}

func newTestFetcher(srv *httptest.Server, policy retry.Policy) *Fetcher {
	return New(Config{
		PageURL:   srv.URL + "/page",
		DataURL:   srv.URL + "/data",
		UserAgent: "test-agent",
		Timeout:   5 * time.Second,
		Retry:     policy,
	})
}

func TestFetch_WarmUpThenDownload(t *testing.T) {
	srv, warmups := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(csvBody))
	})
	f := newTestFetcher(srv, retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	raw, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if raw.Format != sheet.FormatCSV {
		t.Errorf("format = %q, want csv", raw.Format)
	}
	if string(raw.Content) != csvBody {
		t.Error("content does not match served body")
	}
	if raw.CapturedAt.IsZero() {
		t.Error("capture timestamp not set")
	}

	// Second fetch reuses the warm session.
	if _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if n := warmups.Load(); n != 1 {
		t.Errorf("warm-up requests = %d, want 1", n)
	}
}

func TestFetch_RetriesTransientWithBackoff(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var stamps []time.Time
	srv, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(csvBody))
	})
	f := newTestFetcher(srv, retry.Policy{MaxAttempts: 3, BaseDelay: 30 * time.Millisecond})

	if _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("data requests = %d, want 3", n)
	}
	gap1 := stamps[1].Sub(stamps[0])
	gap2 := stamps[2].Sub(stamps[1])
	if gap2 <= gap1 {
		t.Errorf("expected increasing backoff, got %v then %v", gap1, gap2)
	}
}

func TestFetch_FailsFastOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	f := newTestFetcher(srv, retry.Policy{MaxAttempts: 5, BaseDelay: time.Millisecond})

	_, err := f.Fetch(context.Background())
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("data requests = %d, want 1 (no retry on 404)", n)
	}
}

func TestFetch_SessionReestablishedAfterRejection(t *testing.T) {
	var calls atomic.Int32
	srv, warmups := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Simulate server-side session expiry.
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(csvBody))
	})
	f := newTestFetcher(srv, retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond})

	if _, err := f.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if n := warmups.Load(); n != 2 {
		t.Errorf("warm-up requests = %d, want 2 (session rebuilt after 403)", n)
	}
}

func TestFetch_InvalidResponseSurfacedAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("<html><body>maintenance</body></html>"))
	})
	f := newTestFetcher(srv, retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond})

	_, err := f.Fetch(context.Background())
	var invalid *InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidResponseError, got %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("data requests = %d, want MaxAttempts", n)
	}
}

func TestFetch_HeaderOnlySheetIsInvalid(t *testing.T) {
	srv, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("SYMBOL,LATEST OI\n"))
	})
	f := newTestFetcher(srv, retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond})

	_, err := f.Fetch(context.Background())
	var invalid *InvalidResponseError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidResponseError for header-only sheet, got %v", err)
	}
}

func TestFetch_ContextCancel(t *testing.T) {
	srv, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	f := newTestFetcher(srv, retry.Policy{MaxAttempts: 10, BaseDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctx)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Fetch did not return after cancellation")
	}
}
