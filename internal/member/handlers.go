package member

import (
	"time"

	"backend-dailyrecord/internal/auth"
	"backend-dailyrecord/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

// cookieMaxAge is seven days; the token inside still expires after 24h.
const cookieMaxAge = 7 * 24 * 60 * 60

type CookieOptions struct {
	Secure bool
}

func RegisterRoutes(r fiber.Router, svc *Service, cookie CookieOptions, requireAuth fiber.Handler) {
	r.Post("/register", func(c *fiber.Ctx) error {
		var req RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		m, err := svc.Register(c.UserContext(), req)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(m)
	})

	r.Post("/login", func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "email and password required")
		}
		token, err := svc.Login(c.UserContext(), req.Email, req.Password)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
			}
			return apperr.ToFiber(err)
		}
		c.Cookie(&fiber.Cookie{
			Name:     auth.CookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   cookieMaxAge,
			HTTPOnly: true,
			Secure:   cookie.Secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return c.JSON(fiber.Map{"message": "login successful", "token": token})
	})

	r.Post("/logout", func(c *fiber.Ctx) error {
		c.Cookie(&fiber.Cookie{
			Name:     auth.CookieName,
			Value:    "",
			Path:     "/",
			Expires:  time.Now().Add(-time.Hour),
			HTTPOnly: true,
			Secure:   cookie.Secure,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/me", requireAuth, func(c *fiber.Ctx) error {
		p, _ := auth.PrincipalFrom(c)
		m, err := svc.FindByEmail(c.UserContext(), p.Email)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(fiber.Map{"id": m.ID, "username": m.Username, "email": m.Email})
	})

	r.Get("/username/:username", requireAuth, func(c *fiber.Ctx) error {
		m, err := svc.FindByUsername(c.UserContext(), c.Params("username"))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(m)
	})

	r.Get("/email/:email", requireAuth, func(c *fiber.Ctx) error {
		m, err := svc.FindByEmail(c.UserContext(), c.Params("email"))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(m)
	})

	r.Put("/:id", requireAuth, func(c *fiber.Ctx) error {
		var patch ProfilePatch
		if err := c.BodyParser(&patch); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		p, _ := auth.PrincipalFrom(c)
		m, err := svc.UpdateProfile(c.UserContext(), c.Params("id"), patch, p.Token)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(m)
	})

	r.Delete("/:id", requireAuth, func(c *fiber.Ctx) error {
		ok, err := svc.Deactivate(c.UserContext(), c.Params("id"))
		if err != nil {
			return apperr.ToFiber(err)
		}
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "member not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Put("/:id/reactivate", requireAuth, func(c *fiber.Ctx) error {
		ok, err := svc.Reactivate(c.UserContext(), c.Params("id"))
		if err != nil {
			return apperr.ToFiber(err)
		}
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "member not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
