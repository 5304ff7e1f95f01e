package api

import (
	"errors"   // Error classification
	"net/http" // HTTP status codes
	"net/mail" // Email syntax check
	"time"     // Activity timestamps

	"storefront_ledger/internal/db"       // Duplicate key detection
	"storefront_ledger/internal/domain"   // Importing domain models
	"storefront_ledger/internal/identity" // Email normalization
	"storefront_ledger/internal/utils"    // Utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"golang.org/x/crypto/bcrypt" // Password hashing
	"gorm.io/gorm"               // GORM ORM library
)

// RegisterRequest creates a local account
type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`    // Email must be provided
	Password    string `json:"password" binding:"required"` // Password must be provided
	DisplayName string `json:"display_name"`                // Optional presentation name
}

// LoginRequest authenticates a local account
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`    // Email must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// AuthResponse carries the issued bearer token
type AuthResponse struct {
	Token     string `json:"token"`      // JWT token
	AccountID uint   `json:"account_id"` // Canonical account id
}

// isValidEmail accepts a bare address only, no display name
func isValidEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

// isValidPassword checks if the password length is between 8 and 72 characters, bcrypt's limit
func isValidPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 72
}

// RegisterHandler creates a local account with a zero balance
func RegisterHandler(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		email := identity.NormalizeEmail(req.Email)
		if !isValidEmail(email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email"})
			return
		}
		if !isValidPassword(req.Password) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be 8-72 characters"})
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		acct := domain.Account{
			Email:       email,
			Password:    string(hash),
			DisplayName: req.DisplayName,
			Role:        domain.RoleUser, // Admin role is never self-assigned
		}
		if err := gdb.WithContext(c.Request.Context()).Create(&acct).Error; err != nil {
			if db.IsDuplicateKey(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
				return
			}
			respondError(c, "register", err)
			return
		}
		logrus.WithFields(logrus.Fields{"account_id": acct.ID, "email": email}).Info("Account registered")
		c.JSON(http.StatusCreated, gin.H{"message": "Account registered successfully", "account_id": acct.ID})
	}
}

// LoginHandler authenticates a local account and returns a JWT token
func LoginHandler(gdb *gorm.DB, jwtSecret, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx := c.Request.Context()
		var acct domain.Account // Fetch account from database
		err := gdb.WithContext(ctx).Where("email = ?", identity.NormalizeEmail(req.Email)).Take(&acct).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, "login", err)
			return
		}
		// Federated accounts have no password and cannot log in locally
		if err != nil || acct.Password == "" ||
			bcrypt.CompareHashAndPassword([]byte(acct.Password), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}

		// Audit fields are owned by the server
		now := time.Now().UTC()
		if err := gdb.WithContext(ctx).Model(&domain.Account{}).Where("id = ?", acct.ID).Updates(map[string]any{
			"login_count":    gorm.Expr("login_count + 1"),
			"last_active_at": now,
		}).Error; err != nil {
			logrus.WithFields(logrus.Fields{"account_id": acct.ID, "error": err.Error()}).Warn("Failed to record login")
		}

		token, err := utils.GenerateJWT(acct.ID, acct.UID(), acct.Email, jwtSecret, issuer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		c.JSON(http.StatusOK, AuthResponse{Token: token, AccountID: acct.ID})
	}
}
