package ledger

import (
	"context"
	"fmt"

	"storefront_ledger/internal/db"
	"storefront_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PurchaseResult is returned by a committed purchase
type PurchaseResult struct {
	PurchaseID uint            `json:"purchase_id"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// Purchase pays for a product and records the purchase in one transaction.
// The duplicate check, the debit and the insert all run under the account
// row lock, so two concurrent purchases of the same product by the same
// account yield exactly one row; the loser gets domain.ErrAlreadyPurchased.
func (l *Ledger) Purchase(ctx context.Context, accountID, productID uint, amount decimal.Decimal) (PurchaseResult, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return PurchaseResult{}, err
	}

	var result PurchaseResult
	err := l.runner.InTx(ctx, func(tx *gorm.DB) error {
		acct, err := LockAccount(tx, accountID)
		if err != nil {
			return err
		}

		var product domain.Product
		if err := tx.Where("id = ? AND active = ?", productID, true).Take(&product).Error; err != nil {
			if db.IsNotFound(err) {
				return domain.ErrProductNotFound
			}
			return fmt.Errorf("load product %d: %w", productID, err)
		}
		if price := product.EffectivePrice(); !price.Equal(amount) {
			return fmt.Errorf("%w: expected %s, got %s", domain.ErrPriceMismatch, price.StringFixed(2), amount.StringFixed(2))
		}

		var existing int64
		if err := tx.Model(&domain.Purchase{}).
			Where("account_id = ? AND product_id = ?", accountID, productID).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check existing purchase: %w", err)
		}
		if existing > 0 {
			return domain.ErrAlreadyPurchased
		}

		newBalance, err := debitLocked(tx, acct, amount)
		if err != nil {
			return err
		}

		p := domain.Purchase{AccountID: accountID, ProductID: productID, Amount: amount}
		if err := tx.Create(&p).Error; err != nil {
			if db.IsDuplicateKey(err) {
				return domain.ErrAlreadyPurchased
			}
			return fmt.Errorf("insert purchase: %w", err)
		}
		result = PurchaseResult{PurchaseID: p.ID, NewBalance: newBalance}
		return nil
	})

	fields := logrus.Fields{
		"account_id": accountID,
		"product_id": productID,
		"amount":     amount.StringFixed(2),
	}
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Purchase failed")
		return PurchaseResult{}, err
	}
	fields["purchase_id"] = result.PurchaseID
	fields["new_balance"] = result.NewBalance.StringFixed(2)
	logrus.WithFields(fields).Info("Purchase transaction")

	l.emitter.Emit(ctx, domain.Event{
		AccountID:  accountID,
		Kind:       domain.EventPurchaseCompleted,
		Amount:     amount,
		NewBalance: result.NewBalance,
		Reference:  result.PurchaseID,
	})
	return result, nil
}

// Purchases lists an account's purchases, newest first
func (l *Ledger) Purchases(ctx context.Context, accountID uint) ([]domain.Purchase, error) {
	var out []domain.Purchase
	err := l.runner.DB.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, err
}

// AllPurchases pages through every purchase for the admin console
func (l *Ledger) AllPurchases(ctx context.Context, offset, limit int) ([]domain.Purchase, int64, error) {
	var total int64
	q := l.runner.DB.WithContext(ctx).Model(&domain.Purchase{}).Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.Purchase
	err := q.Order("created_at desc, id desc").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}
