package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/sirgawain0x/metoken-orchestrator/internal/dto"
	"github.com/sirgawain0x/metoken-orchestrator/internal/utils"
)

// AuthClaims are the JWT claims the API trusts. Account is the initiator's
// smart account address.
type AuthClaims struct {
	Account string `json:"account"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates bearer tokens on the creation API.
type AuthMiddleware struct {
	secret []byte
	logger *logrus.Logger
}

// NewAuthMiddleware builds the middleware with the shared signing secret.
func NewAuthMiddleware(secret string, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret), logger: logger}
}

// IssueToken signs a token for an account. Used by tests and the session
// bootstrap endpoint.
func (a *AuthMiddleware) IssueToken(account string, ttl time.Duration) (string, error) {
	claims := AuthClaims{
		Account: strings.ToLower(account),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AuthMiddleware) validate(tokenString string) (*AuthClaims, error) {
	claims := &AuthClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if !utils.IsEvmAddress(claims.Account) {
		return nil, fmt.Errorf("token carries no valid account address")
	}
	return claims, nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated account on the context.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Request rejected, missing bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error: "authentication required",
				Code:  "MISSING_AUTH",
			})
			return
		}

		claims, err := a.validate(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":  c.Request.URL.Path,
				"error": err.Error(),
			}).Warn("Request rejected, token validation failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error: "invalid or expired token",
				Code:  "INVALID_TOKEN",
			})
			return
		}

		c.Set("account", claims.Account)
		c.Next()
	}
}

// AccountFromContext returns the authenticated account set by RequireAuth.
func AccountFromContext(c *gin.Context) string {
	if v, ok := c.Get("account"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
