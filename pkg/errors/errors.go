package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Kind classifies an error by how the pipeline should react to it.
type Kind string

const (
	// KindTransient errors (connection resets, 5xx) are retried in place
	// with bounded backoff.
	KindTransient Kind = "transient"
	// KindBlocking errors signal active anti-automation defenses (empty
	// responses, captcha challenges, timeouts) and trigger a strategy
	// switchover rather than a retry storm.
	KindBlocking Kind = "blocking"
	// KindTerminal errors mean the request itself is invalid (profile does
	// not exist, profile private). No retry and no switchover can fix them.
	KindTerminal Kind = "terminal"
	// KindResourceExhausted errors (disk full) abort the whole job:
	// continuing is guaranteed futile.
	KindResourceExhausted Kind = "resource_exhausted"
	KindUnknown           Kind = "unknown"
)

// Error carries a classification alongside the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a classification.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// blockingKeywords mirrors the wording the target platform uses when it is
// refusing automated traffic. The list is a policy choice, not a contract:
// upstream wording drifts, so it lives here and nowhere else.
var blockingKeywords = []string{
	"empty response",
	"blocked",
	"captcha",
	"bot",
	"timeout",
	"timed out",
	"connection",
	"not available",
	"could not fetch",
	"after retries",
	"detecting you",
	"challenge",
}

var terminalKeywords = []string{
	"not found",
	"does not exist",
	"no such user",
	"private",
}

var resourceKeywords = []string{
	"no space left",
	"disk full",
	"quota exceeded",
}

// Classify maps an arbitrary error onto a Kind. Classified errors keep
// their Kind; everything else is judged by sentinel comparison first and
// message keywords last. Keyword matching against error text is fragile by
// nature, which is exactly why this is the only place it happens.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EDQUOT) {
		return KindResourceExhausted
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindBlocking
	}

	msg := strings.ToLower(err.Error())
	for _, kw := range resourceKeywords {
		if strings.Contains(msg, kw) {
			return KindResourceExhausted
		}
	}
	for _, kw := range terminalKeywords {
		if strings.Contains(msg, kw) {
			return KindTerminal
		}
	}
	for _, kw := range blockingKeywords {
		if strings.Contains(msg, kw) {
			return KindBlocking
		}
	}
	return KindUnknown
}

// IsBlocking reports whether err should trigger a strategy switchover.
func IsBlocking(err error) bool {
	return Classify(err) == KindBlocking
}

// IsTerminal reports whether err is unfixable by retry or switchover.
func IsTerminal(err error) bool {
	return Classify(err) == KindTerminal
}

// IsResourceExhausted reports whether err means the host is out of storage.
func IsResourceExhausted(err error) bool {
	return Classify(err) == KindResourceExhausted
}

// IsRetryable reports whether an in-strategy retry makes sense: transient
// and blocking failures may clear up, terminal and resource errors never
// do.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case KindTransient, KindBlocking:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode reports whether an HTTP status indicates a
// retryable condition.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // network error
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
