// Package shared contains common error types and utilities.
package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinels every layer wraps so callers can classify failures without
// knowing which backend or domain type produced them.
var (
	// ErrNotFound: unknown job, missing config or execution record.
	ErrNotFound = errors.New("not found")
	// ErrValidation: rejected input such as an empty job name or a bad cron expression.
	ErrValidation = errors.New("validation failed")
	// ErrConflict: duplicate registration or a record that is already terminal.
	ErrConflict = errors.New("conflict")
	// ErrTimeout: an operation ran out of time.
	ErrTimeout = errors.New("operation timed out")
	// ErrDependencyFailure: a backing store or other external dependency failed.
	ErrDependencyFailure = errors.New("dependency failure")
)

// Kind is the category of an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindConflict
	KindTimeout
	KindDependencyFailure
	KindCanceled
)

var kindNames = map[Kind]string{
	KindNotFound:          "NotFound",
	KindValidation:        "Validation",
	KindConflict:          "Conflict",
	KindTimeout:           "Timeout",
	KindDependencyFailure: "DependencyFailure",
	KindCanceled:          "Canceled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// classification is checked in order. Caller-facing kinds come before
// DependencyFailure so that a store error wrapping "not found" is still
// reported as NotFound.
var classification = []struct {
	kind  Kind
	match func(error) bool
}{
	{KindCanceled, IsCanceled},
	{KindTimeout, IsTimeout},
	{KindNotFound, IsNotFound},
	{KindValidation, IsValidation},
	{KindConflict, IsConflict},
	{KindDependencyFailure, IsDependencyFailure},
}

// KindOf classifies err. For errors.Join values the first matching kind in
// the order above wins. Unrecognized errors are KindUnknown.
//
//	switch shared.KindOf(err) {
//	case shared.KindNotFound:
//	    return http.StatusNotFound
//	case shared.KindConflict:
//	    return http.StatusConflict
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, c := range classification {
		if c.match(err) {
			return c.kind
		}
	}
	return KindUnknown
}

func sentinel(kind Kind) error {
	switch kind {
	case KindNotFound:
		return ErrNotFound
	case KindValidation:
		return ErrValidation
	case KindConflict:
		return ErrConflict
	case KindTimeout:
		return ErrTimeout
	case KindDependencyFailure:
		return ErrDependencyFailure
	default:
		return nil
	}
}

// MarkKind wraps err with the sentinel for kind, keeping err in the chain.
// A nil err yields the bare sentinel; an err that already has kind is
// returned unchanged.
//
//	if pgErr.Code == "23505" {
//	    return shared.MarkKind(err, shared.KindConflict)
//	}
func MarkKind(err error, kind Kind) error {
	s := sentinel(kind)
	if err == nil {
		return s
	}
	if s == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", s, err)
}

// Validationf returns a validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Transient reports whether retrying the failed operation may succeed.
// Timeouts, dependency failures and unclassified errors are transient;
// caller mistakes and cancellation are not.
func Transient(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindValidation, KindConflict, KindCanceled:
		return false
	default:
		return err != nil
	}
}

// IsCanceled reports whether err comes from a canceled context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTimeout covers context.DeadlineExceeded, ErrTimeout and net.Error timeouts.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func IsNotFound(err error) bool          { return errors.Is(err, ErrNotFound) }
func IsValidation(err error) bool        { return errors.Is(err, ErrValidation) }
func IsConflict(err error) bool          { return errors.Is(err, ErrConflict) }
func IsDependencyFailure(err error) bool { return errors.Is(err, ErrDependencyFailure) }
