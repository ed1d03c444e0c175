// Package fetch downloads the options-interest spreadsheet from the source
// site. The site requires a warm-up request against the page URL before the
// data endpoint serves content, so the fetcher keeps a long-lived session
// (cookie jar) and re-establishes it when the server rejects it.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"oispurts/internal/logger"
	"oispurts/internal/retry"
	"oispurts/internal/sheet"
)

// RawSnapshotFile is one downloaded spreadsheet plus capture metadata. It is
// ephemeral: consumed by the processor and discarded once parsed.
type RawSnapshotFile struct {
	Content    []byte
	Format     sheet.Format
	CapturedAt time.Time
}

// Config holds fetcher settings, externally supplied.
type Config struct {
	PageURL   string
	DataURL   string
	UserAgent string
	Timeout   time.Duration
	Retry     retry.Policy
}

// Fetcher downloads raw snapshot files. Safe for use from one goroutine at a
// time; the scheduler is its only caller.
type Fetcher struct {
	cfg    Config
	policy retry.Policy

	mu     sync.Mutex
	client *http.Client
	warmed bool

	now func() time.Time
}

// New creates a Fetcher with a fresh session.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	policy := cfg.Retry
	if policy.MaxAttempts < 1 {
		policy = retry.DefaultPolicy()
	}
	f := &Fetcher{cfg: cfg, policy: policy, now: time.Now}
	f.resetSession()
	return f
}

// resetSession replaces the HTTP client with one holding an empty cookie jar.
func (f *Fetcher) resetSession() {
	jar, _ := cookiejar.New(nil)
	f.mu.Lock()
	f.client = &http.Client{Jar: jar, Timeout: f.cfg.Timeout}
	f.warmed = false
	f.mu.Unlock()
}

// Fetch downloads and validates one spreadsheet. Transient failures
// (transport errors, 5xx, 429, rejected sessions) are retried with backoff;
// other 4xx statuses fail fast. The returned error is a *NetworkError or
// *InvalidResponseError.
func (f *Fetcher) Fetch(ctx context.Context) (*RawSnapshotFile, error) {
	var (
		raw      *RawSnapshotFile
		attempts int
	)

	err := f.policy.Do(ctx, func(ctx context.Context) error {
		attempts++
		r, err := f.fetchOnce(ctx)
		if err != nil {
			logger.Warn("fetch attempt %d failed: %v", attempts, err)
			return err
		}
		raw = r
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		var invalid *InvalidResponseError
		if errors.As(err, &invalid) {
			return nil, invalid
		}
		return nil, &NetworkError{Attempts: attempts, Err: err}
	}
	return raw, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context) (*RawSnapshotFile, error) {
	if err := f.warmUp(ctx); err != nil {
		return nil, err
	}

	resp, err := f.get(ctx, f.cfg.DataURL, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet,application/vnd.ms-excel,text/csv,*/*")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Session expired; establish a fresh one before the next attempt.
		f.resetSession()
		return nil, fmt.Errorf("session rejected with status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("server error: %d", resp.StatusCode)
	default:
		return nil, retry.Permanent(fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	format, err := validate(content)
	if err != nil {
		return nil, err
	}

	return &RawSnapshotFile{
		Content:    content,
		Format:     format,
		CapturedAt: f.now(),
	}, nil
}

// warmUp hits the page URL once per session so the data endpoint accepts us.
func (f *Fetcher) warmUp(ctx context.Context) error {
	f.mu.Lock()
	warmed := f.warmed
	f.mu.Unlock()
	if warmed {
		return nil
	}

	resp, err := f.get(ctx, f.cfg.PageURL, "text/html,application/xhtml+xml,*/*;q=0.8")
	if err != nil {
		return fmt.Errorf("warm-up request failed: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection is reused for the data request.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("warm-up returned status %d", resp.StatusCode)
	}

	f.mu.Lock()
	f.warmed = true
	f.mu.Unlock()
	logger.Debug("session established against %s", f.cfg.PageURL)
	return nil
}

func (f *Fetcher) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")

	f.mu.Lock()
	client := f.client
	f.mu.Unlock()
	return client.Do(req)
}

// validate checks that the payload is a recognizable spreadsheet holding a
// header row and at least one data row.
func validate(content []byte) (sheet.Format, error) {
	format, err := sheet.Detect(content)
	if err != nil {
		return "", &InvalidResponseError{Reason: err.Error()}
	}
	rows, err := sheet.Rows(content, format)
	if err != nil {
		return "", &InvalidResponseError{Reason: err.Error()}
	}
	if len(rows) < 2 {
		return "", &InvalidResponseError{Reason: fmt.Sprintf("expected header and data rows, got %d row(s)", len(rows))}
	}
	return format, nil
}
