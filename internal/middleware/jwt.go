package middleware

import (
	"errors"   // Error classification
	"net/http" // HTTP status codes
	"strconv"  // Account id formatting
	"strings"  // String manipulation

	"storefront_ledger/internal/domain"   // Error taxonomy
	"storefront_ledger/internal/identity" // Identity resolution
	"storefront_ledger/internal/utils"    // JWT utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// Context keys set by JWTAuthMiddleware
const (
	AccountIDKey = "accountID" // Canonical account id (uint)
	EmailKey     = "email"     // Verified email (string)
)

// JWTAuthMiddleware verifies the bearer token and resolves it to a canonical
// account id. Locally issued tokens carry the id and are checked against their
// email; federated tokens carry a UID and are provisioned on first use.
func JWTAuthMiddleware(secret, issuer string, resolver *identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization") // Get Authorization header
		// Check if the Authorization header is present and properly formatted
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ") // Extract the token string
		claims, err := utils.ParseJWT(tokenStr, secret, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		ctx := c.Request.Context()
		var accountID uint
		if claims.AccountID != 0 {
			// Local token: numeric id, owned by the email it was issued to
			accountID, err = resolver.ResolveOwner(ctx, strconv.FormatUint(uint64(claims.AccountID), 10), claims.Email)
		} else {
			var acct domain.Account
			acct, err = resolver.Provision(ctx, claims.UID(), claims.Email)
			accountID = acct.ID
		}
		if err != nil {
			status := http.StatusUnauthorized
			if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrUnauthorized) {
				status = http.StatusInternalServerError // Database trouble, not a bad token
			}
			logrus.WithFields(logrus.Fields{
				"uid":   claims.UID(),
				"email": claims.Email,
				"error": err.Error(),
			}).Warn("Token did not resolve to an account")
			c.AbortWithStatusJSON(status, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(AccountIDKey, accountID)                         // Store canonical id in context
		c.Set(EmailKey, identity.NormalizeEmail(claims.Email)) // Store verified email
		c.Next()                                               // Proceed to the next handler
	}
}

// AccountID returns the canonical id set by JWTAuthMiddleware
func AccountID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(AccountIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}
