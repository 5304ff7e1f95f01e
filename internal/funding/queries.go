package funding

import (
	"context"

	"storefront_ledger/internal/db"
	"storefront_ledger/internal/domain"

	"gorm.io/gorm"
)

// Get loads one request of the given kind
func (lc *Lifecycle) Get(ctx context.Context, kind domain.FundingKind, requestID uint) (domain.FundingRequest, error) {
	var req domain.FundingRequest
	err := lc.db().WithContext(ctx).Where("id = ? AND kind = ?", requestID, kind).Take(&req).Error
	if db.IsNotFound(err) {
		return domain.FundingRequest{}, domain.ErrRequestNotFound
	}
	return req, err
}

// ListForAccount returns the account's own requests, newest first
func (lc *Lifecycle) ListForAccount(ctx context.Context, kind domain.FundingKind, accountID uint) ([]domain.FundingRequest, error) {
	var out []domain.FundingRequest
	err := lc.db().WithContext(ctx).
		Where("kind = ? AND account_id = ?", kind, accountID).
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, err
}

// ListByStatus pages through requests for the admin console. An empty status lists all.
func (lc *Lifecycle) ListByStatus(ctx context.Context, kind domain.FundingKind, status domain.FundingStatus, offset, limit int) ([]domain.FundingRequest, int64, error) {
	q := lc.db().WithContext(ctx).Model(&domain.FundingRequest{}).Where("kind = ?", kind)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []domain.FundingRequest
	err := q.Order("created_at asc, id asc").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}
