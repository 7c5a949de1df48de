package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/liliang-cn/askdesk/internal/domain"
)

const userIDKey = "user_id"

// User ids assigned when no token names one
const (
	AdminUserID = "admin"
	LocalUserID = "local"
	// InternalUserID marks requests the server sends to itself
	InternalUserID = "internal"
)

// AuthOption configures Auth
type AuthOption func(*authOptions)

type authOptions struct {
	internalToken string
}

// WithInternalToken accepts token as the bearer of the server's own
// requests, such as chat sessions dispatching to /api/chat
func WithInternalToken(token string) AuthOption {
	return func(o *authOptions) {
		o.internalToken = token
	}
}

// Auth accepts the admin API key or an HS256 bearer token signed with
// jwtSecret. With neither configured every request is let through as the
// local user.
func Auth(apiKey, jwtSecret string, opts ...AuthOption) gin.HandlerFunc {
	var o authOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(c *gin.Context) {
		bearer := ""
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			bearer = strings.TrimPrefix(auth, "Bearer ")
		}
		if o.internalToken != "" && bearer == o.internalToken {
			c.Set(userIDKey, InternalUserID)
			c.Next()
			return
		}

		if apiKey == "" && jwtSecret == "" {
			c.Set(userIDKey, LocalUserID)
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		if key == "" {
			key = bearer
		}

		if apiKey != "" && key == apiKey {
			c.Set(userIDKey, AdminUserID)
			c.Next()
			return
		}

		if jwtSecret != "" && bearer != "" {
			if userID, err := verifyToken(bearer, jwtSecret); err == nil {
				c.Set(userIDKey, userID)
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": domain.ErrUnauthorized.Error()})
	}
}

// UserID returns the authenticated user of the request
func UserID(c *gin.Context) string {
	if id := c.GetString(userIDKey); id != "" {
		return id
	}
	return LocalUserID
}

func verifyToken(tokenStr, secret string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid claims")
	}
	if id, ok := claims["user_id"].(string); ok && id != "" {
		return id, nil
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub, nil
	}
	return "", fmt.Errorf("token has no user")
}
