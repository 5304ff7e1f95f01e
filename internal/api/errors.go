package api

import (
	"errors"   // Error classification
	"net/http" // HTTP status codes

	"storefront_ledger/internal/domain" // Error taxonomy

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// respondError maps the domain error taxonomy onto HTTP responses
func respondError(c *gin.Context, op string, err error) {
	var insufficient *domain.InsufficientFundsError
	switch {
	case domain.IsAlreadyDone(err):
		// Idempotency guards are a benign outcome, not a failure
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "already_processed": true})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAmountMismatch), errors.Is(err, domain.ErrPriceMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     domain.ErrInsufficientFunds.Error(),
			"available": insufficient.Available.StringFixed(2), // Balance at check time
			"requested": insufficient.Requested.StringFixed(2), // Amount asked for
		})
	case domain.IsClientError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.IsRetryable(err):
		// Rolled back in full, the caller may retry from scratch
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
	default:
		logrus.WithFields(logrus.Fields{
			"op":    op,          // Failing operation
			"error": err.Error(), // Error message
		}).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
