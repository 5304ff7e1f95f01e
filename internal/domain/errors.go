package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors, compare with errors.Is
var (
	// ErrNotFound is returned when an identity does not resolve to an account.
	ErrNotFound = errors.New("account not found")

	// ErrUnauthorized covers ownership mismatches and missing credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when a non-admin attempts an admin-only transition.
	ErrForbidden = errors.New("admin access required")

	// ErrInsufficientFunds is returned when a debit would drive the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrAlreadyPurchased = errors.New("product already purchased")
	ErrAlreadyApproved  = errors.New("request already approved")
	ErrAlreadyRejected  = errors.New("request already rejected")

	// ErrTransactionConflict is returned on lock wait timeout or deadlock. The
	// transaction was rolled back, so the whole operation may be retried.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrRemoteSyncFailure is recovered locally by the reconciler's replay queue.
	ErrRemoteSyncFailure = errors.New("remote sync failed")

	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrAmountMismatch  = errors.New("amount does not match request")
	ErrPriceMismatch   = errors.New("amount does not match product price")
	ErrProductNotFound = errors.New("product not found")
	ErrRequestNotFound = errors.New("funding request not found")
)

// InsufficientFundsError carries the balance that could not cover a debit
type InsufficientFundsError struct {
	AccountID uint
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: account %d has %s, requested %s",
		e.AccountID, e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// AlreadyProcessedError reports the terminal status a second approve/reject observed
func AlreadyProcessedError(status FundingStatus) error {
	if status == StatusRejected {
		return ErrAlreadyRejected
	}
	return ErrAlreadyApproved
}

// IsRetryable returns true if the whole operation may be retried from scratch.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionConflict)
}

// IsAlreadyDone returns true for idempotency guards, which are benign.
func IsAlreadyDone(err error) bool {
	return errors.Is(err, ErrAlreadyPurchased) ||
		errors.Is(err, ErrAlreadyApproved) ||
		errors.Is(err, ErrAlreadyRejected)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrAmountMismatch) ||
		errors.Is(err, ErrPriceMismatch)
}

// ValidateAmount rejects non-positive amounts and sub-cent precision
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: at most two decimal places", ErrInvalidAmount)
	}
	return nil
}
