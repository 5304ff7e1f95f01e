package api

import (
	"encoding/json" // Identity value decoding
	"net/http"      // HTTP status codes
	"strconv"       // String conversion

	"storefront_ledger/internal/domain"     // Importing domain models
	"storefront_ledger/internal/funding"    // Request lifecycle
	"storefront_ledger/internal/middleware" // Caller identity

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Fixed-point amounts
)

// FundingRequestBody submits a deposit or withdrawal
type FundingRequestBody struct {
	Amount            decimal.Decimal `json:"amount"`             // Requested amount
	Method            string          `json:"method"`             // Payment method
	BankDetails       string          `json:"bank_details"`       // Free-text bank details
	ExternalReference string          `json:"external_reference"` // Transfer id supplied by the user
}

// ApproveRequestBody restates what the admin saw when deciding
type ApproveRequestBody struct {
	Amount  decimal.Decimal `json:"amount"`  // Must equal the stored amount
	Account json.RawMessage `json:"account"` // Owner as canonical id or external UID
	Email   string          `json:"email"`   // Owner email
}

// identityString accepts a JSON string or number
func identityString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// pathID parses the :id route parameter
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}

// pagination reads page and page_size the way every admin listing does
func pagination(c *gin.Context) (page, pageSize int) {
	page, pageSize = 1, 20 // Defaults
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= 100 {
		pageSize = v
	}
	return page, pageSize
}

// SubmitFundingHandler creates a pending request owned by the caller
func SubmitFundingHandler(lc *funding.Lifecycle, kind domain.FundingKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := callerID(c)
		if !ok {
			return
		}
		var body FundingRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		req, err := lc.Submit(c.Request.Context(), kind, accountID, body.Amount, domain.FundingDetails{
			Method:            body.Method,
			BankDetails:       body.BankDetails,
			ExternalReference: body.ExternalReference,
		})
		if err != nil {
			respondError(c, "submit "+string(kind), err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"request": req})
	}
}

// ListOwnFundingHandler returns the caller's requests of one kind
func ListOwnFundingHandler(lc *funding.Lifecycle, kind domain.FundingKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := callerID(c)
		if !ok {
			return
		}
		reqs, err := lc.ListForAccount(c.Request.Context(), kind, accountID)
		if err != nil {
			respondError(c, "list "+string(kind), err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"requests": reqs})
	}
}

// ListFundingHandler pages through requests of one kind for the admin console
func ListFundingHandler(lc *funding.Lifecycle, kind domain.FundingKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := domain.FundingStatus(c.Query("status"))
		switch status {
		case "", domain.StatusPending, domain.StatusApproved, domain.StatusRejected:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		page, pageSize := pagination(c)
		reqs, total, err := lc.ListByStatus(c.Request.Context(), kind, status, (page-1)*pageSize, pageSize)
		if err != nil {
			respondError(c, "admin list "+string(kind), err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"requests":    reqs,                                   // Page of requests
			"page":        page,                                   // Current page
			"page_size":   pageSize,                               // Page size
			"total":       total,                                  // Total matching requests
			"total_pages": (int(total) + pageSize - 1) / pageSize, // Total pages
		})
	}
}

// ApproveFundingHandler applies a pending request's balance effect
func ApproveFundingHandler(lc *funding.Lifecycle, kind domain.FundingKind, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID, ok := pathID(c)
		if !ok {
			return
		}
		approverID, ok := middleware.AccountID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var body ApproveRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		owner := funding.Owner{RawID: identityString(body.Account), Email: body.Email}
		req, newBalance, err := lc.Approve(c.Request.Context(), kind, requestID, approverID, body.Amount, owner)
		if err != nil {
			respondError(c, "approve "+string(kind), err)
			return
		}
		invalidateAccount(c, rdb, req.AccountID)
		c.JSON(http.StatusOK, gin.H{"request": req, "new_balance": newBalance.StringFixed(2)})
	}
}

// RejectFundingHandler closes a pending request without a balance effect
func RejectFundingHandler(lc *funding.Lifecycle, kind domain.FundingKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID, ok := pathID(c)
		if !ok {
			return
		}
		approverID, ok := middleware.AccountID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		req, err := lc.Reject(c.Request.Context(), kind, requestID, approverID)
		if err != nil {
			respondError(c, "reject "+string(kind), err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"request": req})
	}
}
