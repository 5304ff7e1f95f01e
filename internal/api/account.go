package api

import (
	"encoding/json" // Raw patch decoding
	"net/http"      // HTTP status codes
	"time"          // Cache TTL

	"storefront_ledger/internal/domain"     // Importing domain models
	"storefront_ledger/internal/identity"   // Account lookup
	"storefront_ledger/internal/ledger"     // Balance reads
	"storefront_ledger/internal/middleware" // Caller identity
	"storefront_ledger/internal/utils"      // Cache helpers

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library
)

// Profile field limits, matching the column sizes
const (
	maxDisplayName = 128
	maxAvatarURL   = 512
)

// callerID reads the canonical id set by the auth middleware, answering 401 when absent
func callerID(c *gin.Context) (uint, bool) {
	id, ok := middleware.AccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
	return id, ok
}

// invalidateAccount drops cached views of the account after a mutation
func invalidateAccount(c *gin.Context, rdb redis.Cmdable, accountID uint) {
	if err := utils.InvalidateAccount(c.Request.Context(), rdb, accountID); err != nil {
		logrus.WithFields(logrus.Fields{"account_id": accountID, "error": err.Error()}).Warn("Cache invalidation failed")
	}
}

// GetAccountHandler returns the caller's profile, cached in Redis
func GetAccountHandler(resolver *identity.Resolver, rdb redis.Cmdable, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := callerID(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		cacheKey := utils.AccountCacheKey(accountID) // Cache key for this account
		var cached domain.Account
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"account": cached, "cached": true})
			return
		}
		acct, err := resolver.Load(ctx, accountID)
		if err != nil {
			respondError(c, "get account", err)
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, acct, ttl) // Cache the profile for future requests
		c.JSON(http.StatusOK, gin.H{"account": acct, "cached": false})
	}
}

// PatchAccountHandler edits presentation fields. Any other field is refused.
func PatchAccountHandler(gdb *gorm.DB, resolver *identity.Resolver, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := callerID(c)
		if !ok {
			return
		}
		var raw map[string]json.RawMessage
		if err := c.ShouldBindJSON(&raw); err != nil || len(raw) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		updates := map[string]any{}
		for field, value := range raw {
			limit := 0
			switch field {
			case "display_name":
				limit = maxDisplayName
			case "avatar_url":
				limit = maxAvatarURL
			default:
				// Balance moves only through the ledger; role is admin-only
				c.JSON(http.StatusBadRequest, gin.H{"error": "Field is not editable: " + field})
				return
			}
			var s string
			if err := json.Unmarshal(value, &s); err != nil || len(s) > limit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid value for " + field})
				return
			}
			updates[field] = s
		}

		ctx := c.Request.Context()
		if err := gdb.WithContext(ctx).Model(&domain.Account{}).Where("id = ?", accountID).Updates(updates).Error; err != nil {
			respondError(c, "patch account", err)
			return
		}
		invalidateAccount(c, rdb, accountID)
		acct, err := resolver.Load(ctx, accountID)
		if err != nil {
			respondError(c, "patch account", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"account": acct})
	}
}

// GetBalanceHandler reads the authoritative balance, never from cache
func GetBalanceHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := callerID(c)
		if !ok {
			return
		}
		balance, err := l.Balance(c.Request.Context(), accountID)
		if err != nil {
			respondError(c, "get balance", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"account_id": accountID, "balance": balance.StringFixed(2)})
	}
}
