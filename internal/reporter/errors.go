package reporter

import "errors"

var (
	// ErrPushFailed indicates a registry push or token exchange failed.
	ErrPushFailed = errors.New("reporter: push failed")

	// ErrRetriesExhausted indicates a report cycle was abandoned after the
	// configured number of attempts.
	ErrRetriesExhausted = errors.New("reporter: retries exhausted")
)
