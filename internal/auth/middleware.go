package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/mesaservicio/ticket-engine/internal/domain"
	apperrors "github.com/mesaservicio/ticket-engine/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	Actor domain.Actor
}

// AuthMiddleware validates bearer tokens and attaches the principal.
type AuthMiddleware struct {
	tokens *TokenVerifier
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{Actor: domain.Actor{ID: claims.ActorID, Role: claims.Role}})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// ActorFromContext is a shortcut returning the domain actor.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	principal, ok := PrincipalFromContext(c)
	if !ok {
		return domain.Actor{}, false
	}
	return principal.Actor, true
}
