package server

import (
	"creditflow/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// CreditEventsHandler streams credit workflow events to an authenticated dashboard.
// Authentication runs in route middleware; the actor is read from connection locals.
// @Summary Credit event stream
// @Description Websocket stream of credit_request.* and verification_code.* events. Pass the token as ?token=.
// @Tags credit
// @Param token query string true "Bearer token"
// @Success 101
// @Failure 401 {object} models.ErrorResponse
// @Failure 426 {object} models.ErrorResponse
// @Router /ws/credit [get]
func (s *Server) CreditEventsHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		actor, _ := conn.Locals(middleware.LocalActor).(string)
		if actor == "" {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(actor, conn)
		if err != nil {
			middleware.Logger.Warn("credit event stream registration failed", "actor", actor, "error", err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
				"error": "websocket upgrade required",
			})
		}
		return upgrade(c)
	}
}
