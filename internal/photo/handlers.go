package photo

import (
	"strconv"

	"backend-dailyrecord/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/upload", authMiddleware, func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "unreadable file")
		}
		defer f.Close()

		p, err := svc.Upload(c.UserContext(), UploadInput{
			File:         f,
			OriginalName: fh.Filename,
			MemberID:     c.FormValue("memberId"),
			PostID:       c.FormValue("postId"),
		})
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(fiber.Map{
			"message":  "file uploaded",
			"fileName": p.FileName,
			"photoId":  p.ID,
		})
	})

	r.Get("/nearby", authMiddleware, func(c *fiber.Ctx) error {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng are required")
		}
		radius := 5.0
		if raw := c.Query("radiusKm"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid radiusKm")
			}
			radius = v
		}
		photos, err := svc.Nearby(c.UserContext(), lat, lng, radius, c.Query("memberId"))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(photos)
	})

	r.Get("/:photoId", authMiddleware, func(c *fiber.Ctx) error {
		detail, err := svc.Get(c.UserContext(), c.Params("photoId"))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(detail)
	})

	r.Post("/:photoId/analyze", authMiddleware, func(c *fiber.Ctx) error {
		var actx AnalysisContext
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&actx); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
			}
		}
		a, err := svc.Analyze(c.UserContext(), c.Params("photoId"), actx)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(fiber.Map{
			"message":  "photo analysed",
			"analysis": a.Story,
			"caption":  a.Caption,
		})
	})

	r.Patch("/:photoId/update-story", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Story string `json:"story"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		updated, err := svc.UpdateStory(c.UserContext(), c.Params("photoId"), body.Story)
		if err != nil {
			return apperr.ToFiber(err)
		}
		if !updated {
			return fiber.NewError(fiber.StatusNotFound, "no analysis for this photo")
		}
		return c.JSON(fiber.Map{"message": "story updated"})
	})
}
