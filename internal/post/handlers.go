package post

import (
	"backend-dailyrecord/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		p, err := svc.Create(c.UserContext(), req)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(p)
	})

	r.Get("/public", authMiddleware, func(c *fiber.Ctx) error {
		posts, err := svc.Public(c.UserContext())
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(posts)
	})

	r.Get("/member/:memberId", authMiddleware, func(c *fiber.Ctx) error {
		posts, err := svc.ByMember(c.UserContext(), c.Params("memberId"))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(posts)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		p, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(p)
	})

	r.Delete("/:id", authMiddleware, func(c *fiber.Ctx) error {
		deleted, err := svc.Delete(c.UserContext(), c.Params("id"))
		if err != nil {
			return apperr.ToFiber(err)
		}
		if !deleted {
			return fiber.NewError(fiber.StatusNotFound, "post not found")
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Patch("/:id/visibility", authMiddleware, func(c *fiber.Ctx) error {
		var req StatusRequest
		if err := c.BodyParser(&req); err != nil || req.Status == "" {
			return fiber.NewError(fiber.StatusBadRequest, "status is required")
		}
		updated, err := svc.UpdateStatus(c.UserContext(), c.Params("id"), req.Status)
		if err != nil {
			return apperr.ToFiber(err)
		}
		if !updated {
			return fiber.NewError(fiber.StatusNotFound, "post not found")
		}
		return c.JSON(fiber.Map{"message": "post status updated", "status": req.Status})
	})
}
