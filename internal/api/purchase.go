package api

import (
	"net/http" // HTTP status codes

	"storefront_ledger/internal/ledger" // Purchase flow

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Fixed-point amounts
)

// PurchaseRequest buys one product at its current effective price
type PurchaseRequest struct {
	ProductID uint            `json:"product_id" binding:"required"` // Product to buy
	Amount    decimal.Decimal `json:"amount"`                        // Price the caller saw
}

// PurchaseHandler debits the caller and records the purchase in one transaction
func PurchaseHandler(l *ledger.Ledger, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := callerID(c)
		if !ok {
			return
		}
		var req PurchaseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		res, err := l.Purchase(c.Request.Context(), accountID, req.ProductID, req.Amount)
		if err != nil {
			respondError(c, "purchase", err)
			return
		}
		invalidateAccount(c, rdb, accountID)
		c.JSON(http.StatusCreated, gin.H{
			"purchase_id": res.PurchaseID,                // New purchase row
			"new_balance": res.NewBalance.StringFixed(2), // Balance after the debit
		})
	}
}

// ListOwnPurchasesHandler returns the caller's purchases
func ListOwnPurchasesHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := callerID(c)
		if !ok {
			return
		}
		purchases, err := l.Purchases(c.Request.Context(), accountID)
		if err != nil {
			respondError(c, "list purchases", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"purchases": purchases})
	}
}
