package handlers

import (
	"github.com/gofiber/fiber/v2"
	job "github.com/postpilothq/postpilot/internal/jobs"
	"github.com/postpilothq/postpilot/internal/quota"
)

type QuotaHandler struct {
	gate  quota.Gate
	alert *job.QuotaAlertJob
}

func NewQuotaHandler(gate quota.Gate, alert *job.QuotaAlertJob) *QuotaHandler {
	return &QuotaHandler{gate: gate, alert: alert}
}

func (h *QuotaHandler) GetUsage(c *fiber.Ctx) error {
	userID := GetUserID(c)

	usage, err := h.gate.Usage(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to read quota usage",
		})
	}

	return c.Status(fiber.StatusOK).JSON(usage)
}

func (h *QuotaHandler) GetAlerts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	alerts, err := h.alert.EvaluateOwner(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to evaluate quota alerts",
		})
	}
	if alerts == nil {
		alerts = []quota.Alert{}
	}

	return c.Status(fiber.StatusOK).JSON(alerts)
}
