package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	UserID   string `json:"uid"`
	TenantID string `json:"tid"`
	RoleID   string `json:"rid"`
	RoleName string `json:"role"`
	jwt.RegisteredClaims
}

// UserContext is the authenticated caller carried on the request context.
type UserContext struct {
	UserID   string
	TenantID string
	RoleID   string
	RoleName string
}

func (c Claims) User() UserContext {
	return UserContext{
		UserID:   c.UserID,
		TenantID: c.TenantID,
		RoleID:   c.RoleID,
		RoleName: c.RoleName,
	}
}

func GenerateToken(secret string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TenantID == "" || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
