package utils

import (
	"errors" // Error construction
	"time"   // Time for token expiration

	"github.com/golang-jwt/jwt/v5" // JWT library
)

// TokenTTL is how long an issued token stays valid
const TokenTTL = 24 * time.Hour

// Claims carried by a bearer token. Subject is the auth provider UID and is
// empty for tokens issued by local login.
type Claims struct {
	Email                string `json:"email"`                // Verified email
	AccountID            uint   `json:"account_id,omitempty"` // Canonical id, present on locally issued tokens
	jwt.RegisteredClaims        // Standard JWT claims
}

// UID returns the external UID carried in the subject claim
func (c *Claims) UID() string {
	return c.Subject
}

// GenerateJWT creates a signed token for an account
func GenerateJWT(accountID uint, externalUID, email, secret, issuer string) (string, error) {
	now := time.Now()
	// Set token claims
	claims := Claims{
		Email:     email,     // Verified email
		AccountID: accountID, // Canonical id
		// Standard claims
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   externalUID,                           // Empty for local accounts
			Issuer:    issuer,                                // Optional issuer
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)), // Token expires in 24 hours
			IssuedAt:  jwt.NewNumericDate(now),               // Issued at current time
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims) // Create token with claims
	return token.SignedString([]byte(secret))                  // Sign the token with the secret
}

// ParseJWT parses and validates a token string. A non-empty issuer must match.
func ParseJWT(tokenStr, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer)) // Reject tokens from other issuers
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil // Return the secret key for validation
	}, opts...)
	// Check for parsing errors
	if err != nil {
		return nil, err // Return error if parsing fails
	}
	// Validate token and extract claims
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid // Return error if token is invalid
	}
	if claims.Email == "" && claims.AccountID == 0 {
		return nil, errors.New("token carries no identity") // Nothing to resolve
	}
	return claims, nil
}
