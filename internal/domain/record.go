package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountKey addresses a user across storage tiers. AccountID is the canonical
// id echoed by the server; ExternalUID keys the document store.
type AccountKey struct {
	AccountID   uint   `json:"account_id"`
	ExternalUID string `json:"external_uid,omitempty"`
}

// CachedUserRecord is the client-side snapshot of an Account. A nil field is
// absent from the tier it was read from, which is what lets a lower-precedence
// tier fill it during a merge.
type CachedUserRecord struct {
	AccountID    uint             `json:"account_id"`
	ExternalUID  string           `json:"external_uid,omitempty"`
	Email        *string          `json:"email,omitempty"`
	DisplayName  *string          `json:"display_name,omitempty"`
	AvatarURL    *string          `json:"avatar_url,omitempty"`
	Balance      *decimal.Decimal `json:"balance,omitempty"`
	Role         *string          `json:"role,omitempty"`
	LoginCount   *int64           `json:"login_count,omitempty"`
	LastActiveAt *time.Time       `json:"last_active_at,omitempty"`
}

// Key returns the tier address of the record
func (r CachedUserRecord) Key() AccountKey {
	return AccountKey{AccountID: r.AccountID, ExternalUID: r.ExternalUID}
}

// FillFrom copies every field of lower that r does not already carry
func (r CachedUserRecord) FillFrom(lower CachedUserRecord) CachedUserRecord {
	if r.AccountID == 0 {
		r.AccountID = lower.AccountID
	}
	if r.ExternalUID == "" {
		r.ExternalUID = lower.ExternalUID
	}
	if r.Email == nil {
		r.Email = lower.Email
	}
	if r.DisplayName == nil {
		r.DisplayName = lower.DisplayName
	}
	if r.AvatarURL == nil {
		r.AvatarURL = lower.AvatarURL
	}
	if r.Balance == nil {
		r.Balance = lower.Balance
	}
	if r.Role == nil {
		r.Role = lower.Role
	}
	if r.LoginCount == nil {
		r.LoginCount = lower.LoginCount
	}
	if r.LastActiveAt == nil {
		r.LastActiveAt = lower.LastActiveAt
	}
	return r
}

// Apply sets every field the patch carries, keeping the rest
func (r CachedUserRecord) Apply(patch CachedUserRecord) CachedUserRecord {
	return patch.FillFrom(r)
}

// RecordFromAccount snapshots a stored account
func RecordFromAccount(a Account) CachedUserRecord {
	email, name, avatar, role := a.Email, a.DisplayName, a.AvatarURL, a.Role
	balance, logins := a.Balance, a.LoginCount
	return CachedUserRecord{
		AccountID:    a.ID,
		ExternalUID:  a.UID(),
		Email:        &email,
		DisplayName:  &name,
		AvatarURL:    &avatar,
		Balance:      &balance,
		Role:         &role,
		LoginCount:   &logins,
		LastActiveAt: a.LastActiveAt,
	}
}
