package youtubeapi

import (
	"context"
	"errors"
	"net/http"
)

// ErrorClass represents whether a provider failure is expected to clear up on its own.
type ErrorClass int

const (
	// ErrorClassRetryable covers transient failures (network, 5xx, rate limiting).
	ErrorClassRetryable ErrorClass = iota
	// ErrorClassFatal covers failures a retry will not fix (auth, not found, bad payload).
	ErrorClassFatal
	// ErrorClassUnknown is returned for a nil error.
	ErrorClassUnknown
)

// String returns a human-readable name for the error class.
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorClassRetryable:
		return "retryable"
	case ErrorClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify sorts a provider error into a class. The relay uses the class only
// for metric labels; the poll loop keeps its fixed cadence either way.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassRetryable
	}
	if errors.Is(err, ErrParse) {
		return ErrorClassFatal
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Status != 0 {
		switch {
		case fe.Status == http.StatusTooManyRequests, fe.Status >= 500:
			return ErrorClassRetryable
		case fe.Status == http.StatusUnauthorized, fe.Status == http.StatusForbidden, fe.Status == http.StatusNotFound:
			return ErrorClassFatal
		}
	}

	// Transport errors and anything unrecognized are treated as transient.
	return ErrorClassRetryable
}
