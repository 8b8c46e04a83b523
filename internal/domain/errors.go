package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrNotOnWaitlist          = errors.New("entrant is not on the waitlist")
	ErrAlreadyOnWaitlist      = errors.New("entrant is already on the waitlist")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrRegistrationClosed     = errors.New("registration is closed")
	ErrWaitlistFull           = errors.New("waitlist is full")
	ErrNothingToDraw          = errors.New("nothing to draw")
	ErrStoreUnavailable       = errors.New("store unavailable")

	ErrEventNotFound = errors.New("event not found")
	ErrForbidden     = errors.New("forbidden")
	ErrCacheMiss     = errors.New("cache miss")
)

// TransitionError reports a rejected status change. It matches
// ErrInvalidStateTransition with errors.Is.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// StoreError wraps an infrastructure failure. The transaction it happened in
// has been rolled back, so the caller may retry.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store unavailable: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// Unavailable wraps err as a StoreError unless it already carries a domain
// meaning (sentinel, transition error, or store error).
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidArgument,
		ErrNotOnWaitlist,
		ErrAlreadyOnWaitlist,
		ErrInvalidStateTransition,
		ErrRegistrationClosed,
		ErrWaitlistFull,
		ErrNothingToDraw,
		ErrStoreUnavailable,
		ErrEventNotFound,
		ErrForbidden,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// InvalidArgument builds an ErrInvalidArgument with a detail message.
func InvalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}
