package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/argus-sec/argus/internal/services"
)

const OperatorTokenHeader = "X-Operator-Token"

var ErrNoSigningSecret = errors.New("jwt signing secret not configured")

// RequireOperator gates mutating operations (block, unblock, reset, channel
// management). A caller authenticates with either a Bearer JWT signed with
// the shared secret or the stored operator token. With neither a secret nor
// a token configured the gate is open, matching the zero-config dev posture.
func RequireOperator(secret string, tokens *services.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" && !tokens.Configured() {
			c.Next()
			return
		}

		if raw := c.GetHeader(OperatorTokenHeader); raw != "" {
			if ok, _ := tokens.Verify(raw); ok {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid operator token"})
			return
		}

		auth := c.GetHeader("Authorization")
		if secret != "" && strings.HasPrefix(auth, "Bearer ") {
			tokenStr := strings.TrimPrefix(auth, "Bearer ")
			if _, err := parseOperatorJWT(secret, tokenStr); err == nil {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator credentials required"})
	}
}

// IssueOperatorJWT mints a short-lived HS256 token for operational tooling.
func IssueOperatorJWT(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSigningSecret
	}

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseOperatorJWT(secret, tokenStr string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
