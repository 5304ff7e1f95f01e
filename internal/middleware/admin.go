package middleware

import (
	"net/http" // HTTP status codes

	"storefront_ledger/internal/identity" // Account lookup

	"github.com/gin-gonic/gin" // Gin web framework
)

// AdminOnlyMiddleware checks the account's role from the database on each request
func AdminOnlyMiddleware(resolver *identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := AccountID(c) // Get accountID from context
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		acct, err := resolver.Load(c.Request.Context(), accountID)
		// Unknown account or any error counts as not an admin
		if err != nil || !acct.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next() // If admin, proceed to the next handler
	}
}
