package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/postpilothq/postpilot/internal/service"
)

type ConnectionHandler struct {
	s service.ConnectionService
}

func NewConnectionHandler(s service.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{s: s}
}

func (h *ConnectionHandler) ListConnections(c *fiber.Ctx) error {
	userID := GetUserID(c)

	connections, err := h.s.List(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list connections",
		})
	}

	return c.Status(fiber.StatusOK).JSON(connections)
}

func (h *ConnectionHandler) RemoveConnection(c *fiber.Ctx) error {
	userID := GetUserID(c)
	connectionID := int64(c.QueryInt("id", 0))

	if err := h.s.Remove(c.Context(), userID, connectionID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to remove connection",
		})
	}

	return c.SendStatus(fiber.StatusOK)
}
