package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Business errors, surfaced to the caller and never retried.
	ErrValidation      = errors.New("validation failed")
	ErrCooldown        = errors.New("request cooldown active")
	ErrAlreadyEntitled = errors.New("user already holds a valid code for this course")
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyAttached = errors.New("proof already attached")
	ErrAlreadyDecided  = errors.New("request already decided")
	ErrForbidden       = errors.New("actor is not an approver")
	ErrInvalidCode     = errors.New("invalid, used or expired code")
	ErrDeviceMismatch  = errors.New("code is bound to another device")

	// Infrastructure errors.
	ErrStoreFailure       = errors.New("store operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrLockNotAcquired    = errors.New("lock not acquired")
)

// CooldownError carries the remaining wait time of a blocked request.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry in %d min", ErrCooldown.Error(), e.MinutesLeft())
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldown }

// MinutesLeft rounds the remaining wait up to whole minutes.
func (e *CooldownError) MinutesLeft() int {
	ms := e.Remaining.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int((ms + 59999) / 60000)
}

// AlreadyEntitledError reports the course the user already holds. Code is set
// when the existing code has not been redeemed yet, so it can be shown again.
type AlreadyEntitledError struct {
	Course    string
	Code      string
	ExpiresAt time.Time
}

func (e *AlreadyEntitledError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAlreadyEntitled.Error(), e.Course)
}

func (e *AlreadyEntitledError) Is(target error) bool { return target == ErrAlreadyEntitled }

// StoreError wraps a driver error as ErrStoreFailure.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreFailure, err)
}
