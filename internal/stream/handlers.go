package stream

import (
	"context"

	"backend-dailyrecord/internal/auth"
	"backend-dailyrecord/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const memberIDKey = "stream.member_id"

// MemberResolver maps an authenticated email to a member id.
type MemberResolver func(ctx context.Context, email string) (string, error)

func RegisterRoutes(r fiber.Router, hub *Hub, resolve MemberResolver, authMiddleware fiber.Handler) {
	r.Get("/ws", authMiddleware, func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		p, ok := auth.PrincipalFrom(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication required")
		}
		memberID, err := resolve(c.UserContext(), p.Email)
		if err != nil {
			return apperr.ToFiber(err)
		}
		c.Locals(memberIDKey, memberID)
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		memberID, _ := c.Locals(memberIDKey).(string)
		client := hub.Register(memberID)
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}
