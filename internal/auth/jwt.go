package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type UserRole string

const (
	RoleAdmin UserRole = "ADMIN"
	RoleUser  UserRole = "USER"
)

type Claims struct {
	UserID string   `json:"userId"`
	Role   UserRole `json:"role"`
	Name   *string  `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// ID returns the numeric user id carried in the token.
func (c *Claims) ID() (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(c.UserID), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid userId %q", c.UserID)
	}
	return id, nil
}

func ParseBearerToken(authHeader string) string {
	parts := strings.Fields(authHeader)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func VerifyAccessToken(tokenString string, secret string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("token required")
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	_, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin && claims.Role != RoleUser {
		return nil, fmt.Errorf("unknown role %q", claims.Role)
	}
	return claims, nil
}

// IssueAccessToken signs an HS256 token for a user. The service only verifies tokens; issuing
// is used by tooling and tests.
func IssueAccessToken(secret string, userID int64, role UserRole, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: strconv.FormatInt(userID, 10),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
