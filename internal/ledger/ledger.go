// Package ledger owns the authoritative account balance.
//
// Every mutation is a signed delta applied while the account row is locked
// with SELECT ... FOR UPDATE, and the lock is held from validation through
// the update so no concurrent request can act on a stale balance.
package ledger

import (
	"context"
	"fmt"

	"storefront_ledger/internal/db"
	"storefront_ledger/internal/domain"
	"storefront_ledger/internal/notify"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger applies balance deltas and runs the purchase flow
type Ledger struct {
	runner  *db.Runner
	emitter notify.Emitter
}

// New returns a Ledger. A nil emitter drops events.
func New(runner *db.Runner, emitter notify.Emitter) *Ledger {
	if emitter == nil {
		emitter = notify.NopEmitter{}
	}
	return &Ledger{runner: runner, emitter: emitter}
}

// Runner exposes the transaction runner so other flows can compose with the ledger
func (l *Ledger) Runner() *db.Runner {
	return l.runner
}

// LockAccount loads the account row with an exclusive row lock held until tx ends
func LockAccount(tx *gorm.DB, accountID uint) (domain.Account, error) {
	var acct domain.Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&acct, accountID).Error
	if db.IsNotFound(err) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("lock account %d: %w", accountID, err)
	}
	return acct, nil
}

// CreditTx increases the balance inside tx and returns the new balance
func (l *Ledger) CreditTx(tx *gorm.DB, accountID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	acct, err := LockAccount(tx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return applyDelta(tx, acct, amount)
}

// DebitTx decreases the balance inside tx and returns the new balance.
// It fails with *domain.InsufficientFundsError if the balance would go negative.
func (l *Ledger) DebitTx(tx *gorm.DB, accountID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	acct, err := LockAccount(tx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return debitLocked(tx, acct, amount)
}

// debitLocked expects acct to have been read through LockAccount in tx
func debitLocked(tx *gorm.DB, acct domain.Account, amount decimal.Decimal) (decimal.Decimal, error) {
	if acct.Balance.Sub(amount).IsNegative() {
		return decimal.Zero, &domain.InsufficientFundsError{
			AccountID: acct.ID,
			Available: acct.Balance,
			Requested: amount,
		}
	}
	return applyDelta(tx, acct, amount.Neg())
}

// applyDelta writes balance = balance + delta on a locked row
func applyDelta(tx *gorm.DB, acct domain.Account, delta decimal.Decimal) (decimal.Decimal, error) {
	res := tx.Model(&domain.Account{}).
		Where("id = ?", acct.ID).
		Update("balance", gorm.Expr("balance + CAST(? AS DECIMAL(20,2))", delta.StringFixed(2)))
	if res.Error != nil {
		return decimal.Zero, fmt.Errorf("apply balance delta: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return decimal.Zero, domain.ErrNotFound
	}
	return acct.Balance.Add(delta), nil
}

// Credit runs CreditTx in its own transaction
func (l *Ledger) Credit(ctx context.Context, accountID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := l.runner.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		newBalance, err = l.CreditTx(tx, accountID, amount)
		return err
	})
	logMutation("credit", accountID, amount, newBalance, err)
	return newBalance, err
}

// Debit runs DebitTx in its own transaction
func (l *Ledger) Debit(ctx context.Context, accountID uint, amount decimal.Decimal) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := l.runner.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		newBalance, err = l.DebitTx(tx, accountID, amount)
		return err
	})
	logMutation("debit", accountID, amount, newBalance, err)
	return newBalance, err
}

// Balance reads the committed balance
func (l *Ledger) Balance(ctx context.Context, accountID uint) (decimal.Decimal, error) {
	var acct domain.Account
	err := l.runner.DB.WithContext(ctx).Select("id", "balance").First(&acct, accountID).Error
	if db.IsNotFound(err) {
		return decimal.Zero, domain.ErrNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("read balance: %w", err)
	}
	return acct.Balance, nil
}

func logMutation(op string, accountID uint, amount, newBalance decimal.Decimal, err error) {
	fields := logrus.Fields{
		"op":         op,
		"account_id": accountID,
		"amount":     amount.StringFixed(2),
	}
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Balance mutation failed")
		return
	}
	fields["new_balance"] = newBalance.StringFixed(2)
	logrus.WithFields(fields).Info("Balance mutation")
}
