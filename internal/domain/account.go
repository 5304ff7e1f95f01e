package domain

import (
	"time" // Timestamps

	"github.com/shopspring/decimal" // Fixed-point currency
)

// Account roles
const (
	RoleUser  = "user"  // Regular storefront customer
	RoleAdmin = "admin" // Admin console operator
)

// Account Model, the canonical ledger-owning entity
type Account struct {
	ID           uint            `gorm:"primaryKey" json:"id"`                                // Canonical account id
	ExternalUID  *string         `gorm:"uniqueIndex;size:128" json:"external_uid,omitempty"`  // Auth provider UID, absent for local accounts
	Email        string          `gorm:"uniqueIndex;size:191;not null" json:"email"`          // Unique email
	Password     string          `gorm:"size:255" json:"-"`                                   // Hashed password, empty for federated accounts
	DisplayName  string          `gorm:"size:128" json:"display_name"`                        // Presentation name
	AvatarURL    string          `gorm:"size:512" json:"avatar_url"`                          // Presentation avatar
	Balance      decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"` // Never negative
	Role         string          `gorm:"size:16;not null;default:user" json:"role"`           // Role: user or admin
	LoginCount   int64           `gorm:"not null;default:0" json:"login_count"`               // Audit counter
	LastActiveAt *time.Time      `json:"last_active_at,omitempty"`                            // Audit timestamp
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// IsAdmin reports whether the account may run admin-only transitions
func (a Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// UID returns the external UID or an empty string
func (a Account) UID() string {
	if a.ExternalUID == nil {
		return ""
	}
	return *a.ExternalUID
}
