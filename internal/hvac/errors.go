package hvac

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed provider operation. Retry policy is
// driven by the kind, not by inspecting transport error types.
type ErrorKind int

const (
	// KindUnauthenticated means no usable credential exists; the
	// out-of-band bootstrap flow must be re-run. Never retried.
	KindUnauthenticated ErrorKind = iota
	// KindAuthExpired is a 401 after the one allowed forced refresh.
	KindAuthExpired
	// KindRateLimited is a 429. Never retried: the provider's penalty
	// for hammering a rate limit is worse than a lost request.
	KindRateLimited
	// KindTransient covers network failures, timeouts and 5xx after
	// the retry budget is exhausted.
	KindTransient
	// KindLookupMiss means the requested zone/device name has no match
	// in the current discovery data.
	KindLookupMiss
	// KindProtocol covers malformed responses and unexpected statuses.
	KindProtocol
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindAuthExpired:
		return "auth_expired"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindLookupMiss:
		return "lookup_miss"
	case KindProtocol:
		return "protocol"
	}
	return "unknown"
}

// Error is a classified provider failure.
type Error struct {
	Kind    ErrorKind
	Status  int // HTTP status, if any
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf returns the classification of err, or KindProtocol if err does
// not carry one.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindProtocol
}
