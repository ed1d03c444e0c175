package process

import "errors"

// ParseError reports a structural schema mismatch in a downloaded sheet.
// Retrying the same payload cannot fix it.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Reason
}

// ErrNoData reports that zero usable rows remained after filtering.
var ErrNoData = errors.New("no usable rows in sheet")

// PersistenceError reports a failed write to disk or the database. Unlike
// cycle failures, callers treat it as fatal: silently losing data is worse
// than crashing.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return "persistence failure: " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }
