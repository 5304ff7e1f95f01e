package api

import (
	"net/http" // HTTP status codes
	"time"     // Time durations

	"storefront_ledger/internal/domain" // Importing domain models
	"storefront_ledger/internal/ledger" // Purchase listing
	"storefront_ledger/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Fixed-point amounts
	"gorm.io/gorm"                  // GORM ORM library
)

// UserAdminResponse represents the account data returned to admin
type UserAdminResponse struct {
	ID          uint            `json:"id"`                     // Canonical account id
	ExternalUID string          `json:"external_uid,omitempty"` // Auth provider UID
	Email       string          `json:"email"`                  // Email
	DisplayName string          `json:"display_name"`           // Presentation name
	Role        string          `json:"role"`                   // Account role
	Balance     decimal.Decimal `json:"balance"`                // Current balance
}

// userPage is the cached body of one admin listing page
type userPage struct {
	Users      []UserAdminResponse `json:"users"`       // List of accounts
	Page       int                 `json:"page"`        // Current page
	PageSize   int                 `json:"page_size"`   // Page size
	Total      int64               `json:"total"`       // Total number of accounts
	TotalPages int                 `json:"total_pages"` // Total pages
	Cached     bool                `json:"cached"`      // Served from cache
}

// ListUsersHandler returns all accounts with their balances
func ListUsersHandler(gdb *gorm.DB, rdb redis.Cmdable, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := pagination(c)
		cacheKey := utils.AdminUsersCacheKey(page, pageSize) // Cache key based on pagination parameters

		// If cached data found, return it
		var cached userPage
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached.Cached = true // Indicate response is from cache
			c.JSON(http.StatusOK, cached)
			return
		}

		var total int64 // Total account count
		if err := gdb.WithContext(ctx).Model(&domain.Account{}).Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count users"})
			return
		}
		var accounts []domain.Account
		if err := gdb.WithContext(ctx).Order("id asc").Offset((page - 1) * pageSize).Limit(pageSize).Find(&accounts).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
			return
		}
		resp := userPage{
			Users:      make([]UserAdminResponse, len(accounts)),
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		}
		// Map accounts to response format
		for i, a := range accounts {
			resp.Users[i] = UserAdminResponse{
				ID:          a.ID,
				ExternalUID: a.UID(),
				Email:       a.Email,
				DisplayName: a.DisplayName,
				Role:        a.Role,
				Balance:     a.Balance,
			}
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, ttl) // Cache the response for future requests
		c.JSON(http.StatusOK, resp)
	}
}

// ListPurchasesHandler pages through every purchase
func ListPurchasesHandler(l *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := pagination(c)
		purchases, total, err := l.AllPurchases(c.Request.Context(), (page-1)*pageSize, pageSize)
		if err != nil {
			respondError(c, "admin list purchases", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"purchases":   purchases,                              // Page of purchases
			"page":        page,                                   // Current page
			"page_size":   pageSize,                               // Page size
			"total":       total,                                  // Total number of purchases
			"total_pages": (int(total) + pageSize - 1) / pageSize, // Total pages
		})
	}
}
