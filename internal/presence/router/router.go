package router

import (
	"context"

	"presence_chat_service/internal/presence/app"
	"presence_chat_service/internal/presence/repository"
	"presence_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes presence routes: the websocket entry plus REST reads of
// the mirrored presence table
func RegisterRoutes(r *fiber.App, wsHandler *app.WebsocketHandler, mirror repository.PresenceRepository) {
	r.Use(middlewares.JWTMiddleware())

	r.Get("/ws", websocket.New(func(c *websocket.Conn) {
		wsHandler.HandleConnection(context.Background(), c)
	}))

	// cluster-wide view from the Redis mirror, not just this node
	r.Get("/presence", func(c *fiber.Ctx) error {
		users, err := mirror.ListOnline(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(users)
	})

	r.Get("/presence/:userId", func(c *fiber.Ctx) error {
		user, err := mirror.Get(c.Context(), c.Params("userId"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(user)
	})
}
