package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventKind names a post-commit notification
type EventKind string

const (
	EventDepositSubmitted    EventKind = "deposit.submitted"
	EventDepositApproved     EventKind = "deposit.approved"
	EventDepositRejected     EventKind = "deposit.rejected"
	EventWithdrawalSubmitted EventKind = "withdrawal.submitted"
	EventWithdrawalApproved  EventKind = "withdrawal.approved"
	EventWithdrawalRejected  EventKind = "withdrawal.rejected"
	EventPurchaseCompleted   EventKind = "purchase.completed"
)

// FundingEventKind maps a request kind and status to its event
func FundingEventKind(kind FundingKind, status FundingStatus) EventKind {
	if status == StatusPending {
		return EventKind(string(kind) + ".submitted")
	}
	return EventKind(string(kind) + "." + string(status))
}

// Event is emitted after a committed balance-affecting operation.
// Delivery is fire-and-forget.
type Event struct {
	ID         string          `json:"id"`
	AccountID  uint            `json:"account_id"`
	Kind       EventKind       `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Reference  uint            `json:"reference,omitempty"` // Request or purchase id
	OccurredAt time.Time       `json:"occurred_at"`
}
