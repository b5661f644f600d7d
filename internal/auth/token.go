package auth

import (
	"errors"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/mesaservicio/ticket-engine/internal/domain"
)

// TokenVerifier validates bearer tokens minted by the identity system.
// The engine never issues tokens itself.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier builds a verifier for the shared signing secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Claims describes the JWT payload.
type Claims struct {
	ActorID string      `json:"sub"`
	Role    domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates the signature and returns the claims.
func (v *TokenVerifier) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.ActorID == "" || !claims.Role.IsValid() {
		return nil, errors.New("token missing actor identity")
	}
	return claims, nil
}
