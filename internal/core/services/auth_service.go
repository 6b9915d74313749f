package services

import (
	"context"
	"fmt"

	"tradecast/internal/core/domain"
	"tradecast/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the token payload the platform's auth service mints. The
// coordinator only verifies; it never issues tokens.
type Claims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

type jwtVerifier struct {
	secret []byte
}

// NewJWTVerifier builds an HS256 token verifier.
func NewJWTVerifier(secret string) ports.AuthVerifier {
	return &jwtVerifier{secret: []byte(secret)}
}

func (v *jwtVerifier) Verify(ctx context.Context, tokenString string) (domain.Identity, error) {
	if tokenString == "" {
		return "", domain.ErrUnauthorized
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return "", domain.ErrUnauthorized
	}
	identity := claims.Identity
	if identity == "" {
		identity = claims.Subject
	}
	if identity == "" {
		return "", domain.ErrUnauthorized
	}
	return domain.Identity(identity), nil
}
