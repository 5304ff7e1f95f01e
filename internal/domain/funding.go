package domain

import (
	"time" // Timestamps

	"github.com/shopspring/decimal" // Fixed-point currency
)

// FundingKind distinguishes deposits from withdrawals. Both share one table.
type FundingKind string

const (
	KindDeposit    FundingKind = "deposit"
	KindWithdrawal FundingKind = "withdrawal"
)

// Valid reports whether k is a known kind
func (k FundingKind) Valid() bool {
	return k == KindDeposit || k == KindWithdrawal
}

// FundingStatus is the request state. pending is the only non-terminal state.
type FundingStatus string

const (
	StatusPending  FundingStatus = "pending"
	StatusApproved FundingStatus = "approved"
	StatusRejected FundingStatus = "rejected"
)

// FundingRequest Model
type FundingRequest struct {
	ID                uint            `gorm:"primaryKey" json:"id"`                                                         // Request id
	Kind              FundingKind     `gorm:"size:16;not null;index:idx_funding_kind_status" json:"kind"`                   // deposit or withdrawal
	AccountID         uint            `gorm:"not null;index" json:"account_id"`                                             // Owning account
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`                                    // Always positive
	Method            string          `gorm:"size:64" json:"method"`                                                        // Payment method
	BankDetails       string          `gorm:"size:512" json:"bank_details"`                                                 // Free-text bank details
	ExternalReference string          `gorm:"size:128" json:"external_reference"`                                           // Transfer id supplied by the user
	Status            FundingStatus   `gorm:"size:16;not null;default:pending;index:idx_funding_kind_status" json:"status"` // pending until an admin acts
	CreatedAt         time.Time       `json:"created_at"`                                                                   // Submission time
	ApprovedBy        *uint           `json:"approved_by,omitempty"`                                                        // Admin that processed the request
	ApprovedAt        *time.Time      `json:"approved_at,omitempty"`                                                        // Processing time, set on approve and reject
}

// Terminal reports whether no further transition is allowed
func (r FundingRequest) Terminal() bool {
	return r.Status != StatusPending
}

// FundingDetails is the caller-supplied part of a submission
type FundingDetails struct {
	Method            string
	BankDetails       string
	ExternalReference string
}
