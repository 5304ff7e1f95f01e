// Package funding runs the deposit and withdrawal request lifecycle.
//
// A request is created pending and moves exactly once to approved or
// rejected. The approval transition and its balance effect commit in the same
// transaction, with the request row locked, so a second approval of the same
// request observes the terminal status instead of applying the effect again.
package funding

import (
	"context"
	"fmt"
	"time"

	"storefront_ledger/internal/db"
	"storefront_ledger/internal/domain"
	"storefront_ledger/internal/identity"
	"storefront_ledger/internal/ledger"
	"storefront_ledger/internal/notify"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Owner identifies the account an approval payload claims the request belongs to.
// RawID may be a canonical id, an external UID or empty.
type Owner struct {
	RawID string
	Email string
}

// Lifecycle drives FundingRequest transitions
type Lifecycle struct {
	ledger   *ledger.Ledger
	resolver *identity.Resolver
	emitter  notify.Emitter
	now      func() time.Time
}

// New returns a Lifecycle. A nil emitter drops events.
func New(l *ledger.Ledger, r *identity.Resolver, e notify.Emitter) *Lifecycle {
	if e == nil {
		e = notify.NopEmitter{}
	}
	return &Lifecycle{ledger: l, resolver: r, emitter: e, now: func() time.Time { return time.Now().UTC() }}
}

func (lc *Lifecycle) db() *gorm.DB {
	return lc.ledger.Runner().DB
}

// Submit creates a pending request. It has no balance effect. Withdrawals
// larger than the current balance are refused up front; the balance is
// checked again, under lock, at approval time.
func (lc *Lifecycle) Submit(ctx context.Context, kind domain.FundingKind, accountID uint, amount decimal.Decimal, details domain.FundingDetails) (domain.FundingRequest, error) {
	if !kind.Valid() {
		return domain.FundingRequest{}, fmt.Errorf("unknown funding kind %q", kind)
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return domain.FundingRequest{}, err
	}
	acct, err := lc.resolver.Load(ctx, accountID)
	if err != nil {
		return domain.FundingRequest{}, err
	}
	if kind == domain.KindWithdrawal && acct.Balance.LessThan(amount) {
		return domain.FundingRequest{}, &domain.InsufficientFundsError{AccountID: accountID, Available: acct.Balance, Requested: amount}
	}

	req := domain.FundingRequest{
		Kind:              kind,
		AccountID:         accountID,
		Amount:            amount,
		Method:            details.Method,
		BankDetails:       details.BankDetails,
		ExternalReference: details.ExternalReference,
		Status:            domain.StatusPending,
	}
	if err := lc.db().WithContext(ctx).Create(&req).Error; err != nil {
		return domain.FundingRequest{}, fmt.Errorf("create %s request: %w", kind, err)
	}

	logrus.WithFields(logrus.Fields{
		"kind":       kind,
		"request_id": req.ID,
		"account_id": accountID,
		"amount":     amount.StringFixed(2),
		"reference":  details.ExternalReference,
	}).Info("Funding request submitted")
	lc.emitter.Emit(ctx, domain.Event{
		AccountID:  accountID,
		Kind:       domain.FundingEventKind(kind, domain.StatusPending),
		Amount:     amount,
		NewBalance: acct.Balance,
		Reference:  req.ID,
	})
	return req, nil
}

// Approve applies the request's balance effect and marks it approved.
// amount and owner must match what is stored on the request, which guards
// against stale or forged approval payloads.
func (lc *Lifecycle) Approve(ctx context.Context, kind domain.FundingKind, requestID, approverID uint, amount decimal.Decimal, owner Owner) (domain.FundingRequest, decimal.Decimal, error) {
	if err := lc.requireAdmin(ctx, approverID); err != nil {
		return domain.FundingRequest{}, decimal.Zero, err
	}

	var (
		req        domain.FundingRequest
		newBalance decimal.Decimal
	)
	err := lc.ledger.Runner().InTx(ctx, func(tx *gorm.DB) error {
		var err error
		req, err = lockPending(tx, kind, requestID)
		if err != nil {
			return err
		}
		// Terminal status wins over a stale owner payload
		ownerID, err := lc.resolver.WithTx(tx).ResolveOwner(ctx, owner.RawID, owner.Email)
		if err != nil {
			return err
		}
		if !req.Amount.Equal(amount) {
			return fmt.Errorf("%w: request %d is for %s, approval says %s",
				domain.ErrAmountMismatch, req.ID, req.Amount.StringFixed(2), amount.StringFixed(2))
		}
		if req.AccountID != ownerID {
			return fmt.Errorf("%w: request %d does not belong to account %d", domain.ErrUnauthorized, req.ID, ownerID)
		}

		switch kind {
		case domain.KindDeposit:
			newBalance, err = lc.ledger.CreditTx(tx, req.AccountID, req.Amount)
		case domain.KindWithdrawal:
			newBalance, err = lc.ledger.DebitTx(tx, req.AccountID, req.Amount)
		}
		if err != nil {
			return err
		}
		return lc.finish(tx, &req, domain.StatusApproved, approverID)
	})

	lc.report(ctx, "approve", kind, requestID, approverID, req, newBalance, err)
	if err != nil {
		return domain.FundingRequest{}, decimal.Zero, err
	}
	return req, newBalance, nil
}

// Reject marks the request rejected. It has no balance effect.
func (lc *Lifecycle) Reject(ctx context.Context, kind domain.FundingKind, requestID, approverID uint) (domain.FundingRequest, error) {
	if err := lc.requireAdmin(ctx, approverID); err != nil {
		return domain.FundingRequest{}, err
	}

	var (
		req     domain.FundingRequest
		balance decimal.Decimal
	)
	err := lc.ledger.Runner().InTx(ctx, func(tx *gorm.DB) error {
		var err error
		req, err = lockPending(tx, kind, requestID)
		if err != nil {
			return err
		}
		if err := lc.finish(tx, &req, domain.StatusRejected, approverID); err != nil {
			return err
		}
		var acct domain.Account
		if err := tx.Select("balance").Where("id = ?", req.AccountID).Take(&acct).Error; err != nil {
			return fmt.Errorf("read balance of account %d: %w", req.AccountID, err)
		}
		balance = acct.Balance
		return nil
	})

	lc.report(ctx, "reject", kind, requestID, approverID, req, balance, err)
	if err != nil {
		return domain.FundingRequest{}, err
	}
	return req, nil
}

func (lc *Lifecycle) requireAdmin(ctx context.Context, approverID uint) error {
	approver, err := lc.resolver.Load(ctx, approverID)
	if err != nil {
		return fmt.Errorf("%w: unknown approver", domain.ErrUnauthorized)
	}
	if !approver.IsAdmin() {
		return domain.ErrForbidden
	}
	return nil
}

// lockPending loads the request with a row lock and refuses terminal requests
func lockPending(tx *gorm.DB, kind domain.FundingKind, requestID uint) (domain.FundingRequest, error) {
	var req domain.FundingRequest
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND kind = ?", requestID, kind).
		Take(&req).Error
	if db.IsNotFound(err) {
		return domain.FundingRequest{}, domain.ErrRequestNotFound
	}
	if err != nil {
		return domain.FundingRequest{}, fmt.Errorf("lock request %d: %w", requestID, err)
	}
	if req.Terminal() {
		return req, domain.AlreadyProcessedError(req.Status)
	}
	return req, nil
}

// finish flips a locked pending request to a terminal status
func (lc *Lifecycle) finish(tx *gorm.DB, req *domain.FundingRequest, status domain.FundingStatus, approverID uint) error {
	at := lc.now()
	res := tx.Model(&domain.FundingRequest{}).
		Where("id = ? AND status = ?", req.ID, domain.StatusPending).
		Updates(map[string]any{
			"status":      status,
			"approved_by": approverID,
			"approved_at": at,
		})
	if res.Error != nil {
		return fmt.Errorf("update request %d: %w", req.ID, res.Error)
	}
	if res.RowsAffected != 1 {
		return domain.ErrTransactionConflict
	}
	req.Status = status
	req.ApprovedBy = &approverID
	req.ApprovedAt = &at
	return nil
}

// report logs the outcome and, on success, emits the post-commit event
func (lc *Lifecycle) report(ctx context.Context, op string, kind domain.FundingKind, requestID, approverID uint, req domain.FundingRequest, balance decimal.Decimal, err error) {
	fields := logrus.Fields{
		"op":          op,
		"kind":        kind,
		"request_id":  requestID,
		"approver_id": approverID,
	}
	if err != nil {
		fields["error"] = err.Error()
		entry := logrus.WithFields(fields)
		if domain.IsAlreadyDone(err) {
			entry.Info("Funding request already processed")
		} else {
			entry.Warn("Funding transition failed")
		}
		return
	}
	fields["account_id"] = req.AccountID
	fields["amount"] = req.Amount.StringFixed(2)
	fields["new_balance"] = balance.StringFixed(2)
	logrus.WithFields(fields).Info("Funding transition")

	lc.emitter.Emit(ctx, domain.Event{
		AccountID:  req.AccountID,
		Kind:       domain.FundingEventKind(kind, req.Status),
		Amount:     req.Amount,
		NewBalance: balance,
		Reference:  req.ID,
	})
}
