package storage

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes serves stored files back to authenticated members.
func RegisterRoutes(r fiber.Router, store *Local, authMiddleware fiber.Handler) {
	r.Get("/:key", authMiddleware, func(c *fiber.Ctx) error {
		key := c.Params("key")
		path, err := store.Path(key)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid file key")
		}
		if !store.Exists(key) {
			return fiber.NewError(fiber.StatusNotFound, "file not found")
		}
		return c.SendFile(path)
	})
}
