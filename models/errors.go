package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError reports invalid caller input. Operations returning it
// have no side effects.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StateConflictError reports an operation that arrived in the wrong state,
// such as a duplicate bet, a cashout on a bet that is no longer active, or
// a bet placed outside the waiting phase. No side effects; the caller may
// retry later.
type StateConflictError struct {
	Reason string
}

func (e StateConflictError) Error() string {
	return e.Reason
}

// InsufficientFundsError reports a debit that would overdraw the user
type InsufficientFundsError struct {
	Have decimal.Decimal
	Need decimal.Decimal
}

func (e InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance: have %s, need %s",
		e.Have.StringFixed(2), e.Need.StringFixed(2))
}

// IntegrityError reports a broken invariant such as a duplicate transaction
// reference. It is fatal to the operation: the caller must not retry, and
// the engine halts the affected round rather than continue on corrupt state.
type IntegrityError struct {
	Reason string
	Err    error
}

func (e IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("integrity violation: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("integrity violation: %s", e.Reason)
}

func (e IntegrityError) Unwrap() error { return e.Err }

// TransientError wraps a storage or payment provider failure that is safe
// to retry with backoff at the request boundary, never inside the tick loop.
type TransientError struct {
	Op  string
	Err error
}

func (e TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e TransientError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

// IsStateConflict reports whether err is a StateConflictError
func IsStateConflict(err error) bool {
	var target StateConflictError
	return errors.As(err, &target)
}

// IsInsufficientFunds reports whether err is an InsufficientFundsError
func IsInsufficientFunds(err error) bool {
	var target InsufficientFundsError
	return errors.As(err, &target)
}

// IsIntegrity reports whether err is an IntegrityError
func IsIntegrity(err error) bool {
	var target IntegrityError
	return errors.As(err, &target)
}

// IsTransient reports whether err is a TransientError
func IsTransient(err error) bool {
	var target TransientError
	return errors.As(err, &target)
}
