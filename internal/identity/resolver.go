// Package identity maps the three identity representations (canonical
// account id, external auth UID, email) onto the canonical account id.
// No other package branches on which representation it was handed.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"storefront_ledger/internal/db"
	"storefront_ledger/internal/domain"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Resolver looks up canonical account ids
type Resolver struct {
	db *gorm.DB
}

// NewResolver returns a Resolver reading from the accounts table
func NewResolver(gdb *gorm.DB) *Resolver {
	return &Resolver{db: gdb}
}

// WithTx returns a Resolver that reads through tx, for lookups that must see
// the same snapshot as the surrounding transaction
func (r *Resolver) WithTx(tx *gorm.DB) *Resolver {
	return &Resolver{db: tx}
}

// NormalizeEmail is applied on every write and every lookup of an email
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ParseAccountID reports whether raw is a canonical account id
func ParseAccountID(raw string) (uint, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}

// Resolve returns the canonical account id for rawID. A numeric rawID is
// returned as is without a lookup. Anything else is an external UID or free
// text, and the account is found by exact equality on emailHint.
// Resolve has no side effects.
func (r *Resolver) Resolve(ctx context.Context, rawID, emailHint string) (uint, error) {
	if id, ok := ParseAccountID(rawID); ok {
		return id, nil
	}
	email := NormalizeEmail(emailHint)
	if email == "" {
		return 0, domain.ErrNotFound
	}
	var acct domain.Account
	err := r.db.WithContext(ctx).Select("id").Where("email = ?", email).Take(&acct).Error
	if db.IsNotFound(err) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("resolve by email: %w", err)
	}
	return acct.ID, nil
}

// VerifyOwnership checks that accountID belongs to email. A mismatch is an
// authorization failure, not a resolution failure.
func (r *Resolver) VerifyOwnership(ctx context.Context, accountID uint, email string) error {
	acct, err := r.Load(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.Email != NormalizeEmail(email) {
		return fmt.Errorf("%w: account %d does not belong to caller", domain.ErrUnauthorized, accountID)
	}
	return nil
}

// ResolveOwner resolves rawID and, when emailHint is also supplied, verifies
// the resolved account belongs to it
func (r *Resolver) ResolveOwner(ctx context.Context, rawID, emailHint string) (uint, error) {
	id, err := r.Resolve(ctx, rawID, emailHint)
	if err != nil {
		return 0, err
	}
	if _, numeric := ParseAccountID(rawID); numeric && strings.TrimSpace(emailHint) != "" {
		if err := r.VerifyOwnership(ctx, id, emailHint); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Load reads the account row
func (r *Resolver) Load(ctx context.Context, accountID uint) (domain.Account, error) {
	var acct domain.Account
	err := r.db.WithContext(ctx).First(&acct, accountID).Error
	if db.IsNotFound(err) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("load account %d: %w", accountID, err)
	}
	return acct, nil
}

// Provision returns the account for a verified federated identity, creating it
// on first login and linking the UID to an existing email-only account once.
// The UID is only ever compared against external_uid, never read as an account id.
func (r *Resolver) Provision(ctx context.Context, uid, email string) (domain.Account, error) {
	uid = strings.TrimSpace(uid)
	email = NormalizeEmail(email)

	acct, err := r.findFederated(ctx, uid, email)
	if !errors.Is(err, domain.ErrNotFound) {
		return acct, err
	}
	if email == "" {
		return domain.Account{}, fmt.Errorf("%w: federated identity carries no email", domain.ErrUnauthorized)
	}

	acct = domain.Account{Email: email, Role: domain.RoleUser}
	if uid != "" {
		acct.ExternalUID = &uid
	}
	if err := r.db.WithContext(ctx).Create(&acct).Error; err != nil {
		if db.IsDuplicateKey(err) {
			// Either a concurrent first login created it, or the uid is taken by another email
			if found, ferr := r.findFederated(ctx, uid, email); ferr == nil {
				return found, nil
			}
			return domain.Account{}, fmt.Errorf("%w: identity is linked to another email", domain.ErrUnauthorized)
		}
		return domain.Account{}, fmt.Errorf("provision account: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"account_id": acct.ID,
		"email":      email,
	}).Info("Account provisioned on first login")
	return acct, nil
}

// findFederated looks the identity up by external UID first, then by email.
// A UID already bound to a different email is refused.
func (r *Resolver) findFederated(ctx context.Context, uid, email string) (domain.Account, error) {
	if uid != "" {
		var acct domain.Account
		err := r.db.WithContext(ctx).Where("external_uid = ?", uid).Take(&acct).Error
		switch {
		case err == nil:
			if email != "" && acct.Email != email {
				return domain.Account{}, fmt.Errorf("%w: identity is linked to another email", domain.ErrUnauthorized)
			}
			return acct, nil
		case !db.IsNotFound(err):
			return domain.Account{}, fmt.Errorf("resolve by external uid: %w", err)
		}
	}
	if email == "" {
		return domain.Account{}, domain.ErrNotFound
	}
	var acct domain.Account
	err := r.db.WithContext(ctx).Where("email = ?", email).Take(&acct).Error
	if db.IsNotFound(err) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("resolve by email: %w", err)
	}
	return r.link(ctx, acct, uid)
}

// link binds uid to an account found by email, once
func (r *Resolver) link(ctx context.Context, acct domain.Account, uid string) (domain.Account, error) {
	if uid == "" {
		return acct, nil
	}
	if acct.ExternalUID != nil {
		if *acct.ExternalUID != uid {
			return domain.Account{}, fmt.Errorf("%w: email is linked to another identity", domain.ErrUnauthorized)
		}
		return acct, nil
	}
	res := r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ? AND external_uid IS NULL", acct.ID).
		Update("external_uid", uid)
	if res.Error != nil {
		if db.IsDuplicateKey(res.Error) {
			return domain.Account{}, fmt.Errorf("%w: identity is linked to another email", domain.ErrUnauthorized)
		}
		return domain.Account{}, fmt.Errorf("link external uid: %w", res.Error)
	}
	linked, err := r.Load(ctx, acct.ID)
	if err != nil {
		return domain.Account{}, err
	}
	// A concurrent login may have linked a different uid first
	if linked.UID() != uid {
		return domain.Account{}, fmt.Errorf("%w: email is linked to another identity", domain.ErrUnauthorized)
	}
	return linked, nil
}
