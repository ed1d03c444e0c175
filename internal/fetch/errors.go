package fetch

import "fmt"

// NetworkError reports a fetch that failed at the HTTP layer, after retries
// for transient failures or immediately for non-transient statuses.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// InvalidResponseError reports a download that completed but does not hold a
// usable spreadsheet (empty body, HTML error page, missing data rows).
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string {
	return "invalid response: " + e.Reason
}
