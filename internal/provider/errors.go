package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a provider failure for the caller's retry decision.
type Kind int

const (
	// KindRetryable covers transient faults: timeouts, rate limits,
	// service errors. The same call may succeed later.
	KindRetryable Kind = iota
	// KindPermanent covers faults that will not heal on retry: bad
	// requests, missing audio, malformed output.
	KindPermanent
)

func (k Kind) String() string {
	if k == KindRetryable {
		return "retryable"
	}
	return "permanent"
}

// Error is a classified provider failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether err is a provider failure worth retrying.
func Retryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindRetryable
}

// Permanent reports whether err is a provider failure that retries cannot fix.
func Permanent(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == KindPermanent
}

func retryable(op string, err error) *Error {
	return &Error{Kind: KindRetryable, Op: op, Err: err}
}

func permanent(op string, err error) *Error {
	return &Error{Kind: KindPermanent, Op: op, Err: err}
}

// classifyStatus maps an HTTP status to a failure kind. Timeouts, rate
// limits, and server errors are transient; every other non-2xx is not.
func classifyStatus(op string, status int, body string) *Error {
	err := fmt.Errorf("status %d: %s", status, body)
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return retryable(op, err)
	default:
		return permanent(op, err)
	}
}
