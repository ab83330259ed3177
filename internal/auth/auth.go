package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Manager issues and validates session tokens bound to a wallet address.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// GenerateSessionToken generates a JWT token for the caller's wallet address
func (m *Manager) GenerateSessionToken(address string) (string, error) {
	claims := jwt.MapClaims{
		"caller_address": address,
		"exp":            time.Now().Add(m.ttl).Unix(),
		"iat":            time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, nil
}

// ValidateSessionToken validates a JWT token and returns the wallet address
func (m *Manager) ValidateSessionToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		address, ok := claims["caller_address"].(string)
		if !ok {
			return "", fmt.Errorf("caller_address not found in token")
		}
		return address, nil
	}

	return "", fmt.Errorf("invalid token")
}

// Middleware binds the caller's wallet address into the request context when
// a bearer token is present. Requests without a token continue; handlers that
// need an authenticated caller check for it themselves.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			c.Next()
			return
		}

		address, err := m.ValidateSessionToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			c.Abort()
			return
		}

		c.Set("caller_address", address)
		c.Next()
	}
}

// CallerAddress returns the authenticated wallet address, if any.
func CallerAddress(c *gin.Context) (string, bool) {
	v, ok := c.Get("caller_address")
	if !ok {
		return "", false
	}
	address, ok := v.(string)
	return address, ok
}
