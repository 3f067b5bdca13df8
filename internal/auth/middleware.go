package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CookieName is the cookie carrying the session token.
const CookieName = "authToken"

const (
	principalKey = "auth.principal"
	gatedKey     = "auth.gated"
)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	Email string
	Token string
}

// Gate resolves the session token, cookie first and Authorization header
// second, and attaches a Principal for the first one that validates. It never rejects a
// request; route policy is applied by RequireAuth.
func Gate(codec *Codec) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if gated, _ := c.Locals(gatedKey).(bool); gated {
			return c.Next()
		}
		c.Locals(gatedKey, true)

		for _, token := range tokensFromRequest(c) {
			if !codec.Validate(token) {
				continue
			}
			subject, err := codec.SubjectOf(token)
			if err != nil {
				continue
			}
			c.Locals(principalKey, Principal{Email: subject, Token: token})
			break
		}
		return c.Next()
	}
}

// RequireAuth rejects requests the Gate left unauthenticated.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFrom(c); !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		return c.Next()
	}
}

func PrincipalFrom(c *fiber.Ctx) (Principal, bool) {
	p, ok := c.Locals(principalKey).(Principal)
	return p, ok
}

// tokensFromRequest is the single place raw tokens are pulled off a request,
// in precedence order. A stale cookie does not hide a valid header.
func tokensFromRequest(c *fiber.Ctx) []string {
	var tokens []string
	if token := c.Cookies(CookieName); token != "" {
		tokens = append(tokens, token)
	}
	if token := bearerFromHeader(c.Get(fiber.HeaderAuthorization)); token != "" {
		tokens = append(tokens, token)
	}
	return tokens
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
