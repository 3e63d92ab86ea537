package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/postpilothq/postpilot/internal/service"
)

func GetUserID(c *fiber.Ctx) int64 {
	userID, _ := strconv.Atoi(c.Locals("user_id").(string))
	return int64(userID)
}

// domainStatus maps post mutation errors onto HTTP statuses. Conflicts
// (publish in flight, illegal transition) come back 409 so the client can
// roll back an optimistic update.
func domainStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrPostNotFound), errors.Is(err, service.ErrConnectionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrPublishInFlight),
		errors.Is(err, service.ErrNotCancellable),
		errors.Is(err, service.ErrNotReschedulable),
		errors.Is(err, service.ErrNotRetryable),
		errors.Is(err, service.ErrRetryCeilingHit):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}
