package domain

import (
	"time" // Timestamps

	"github.com/shopspring/decimal" // Fixed-point currency
)

// Purchase Model, at most one row per (account, product)
type Purchase struct {
	ID        uint            `gorm:"primaryKey" json:"id"`                                                // Purchase id
	AccountID uint            `gorm:"not null;uniqueIndex:idx_purchase_account_product" json:"account_id"` // Buyer
	ProductID uint            `gorm:"not null;uniqueIndex:idx_purchase_account_product" json:"product_id"` // Product bought
	Amount    decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`                           // Effective price paid
	CreatedAt time.Time       `json:"created_at"`                                                          // Purchase time
}

// Product Model. Catalog CRUD lives outside this service; only price lookups happen here.
type Product struct {
	ID        uint                `gorm:"primaryKey" json:"id"`                     // Product id
	Name      string              `gorm:"size:255;not null" json:"name"`            // Display name
	Price     decimal.Decimal     `gorm:"type:decimal(20,2);not null" json:"price"` // List price
	SalePrice decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"sale_price"`     // Overrides Price when set
	Active    bool                `gorm:"not null;default:true" json:"active"`      // Inactive products cannot be bought
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// EffectivePrice is the sale price when one is set, the list price otherwise
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice.Valid && p.SalePrice.Decimal.IsPositive() {
		return p.SalePrice.Decimal
	}
	return p.Price
}
