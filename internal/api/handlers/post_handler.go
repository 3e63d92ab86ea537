package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/postpilothq/postpilot/internal/queue"
	"github.com/postpilothq/postpilot/internal/service"
	"github.com/postpilothq/postpilot/internal/transfer"
)

type PostHandler struct {
	s           service.PostService
	AsynqClient *asynq.Client
}

func NewPostHandler(s service.PostService, asynqClient *asynq.Client) *PostHandler {
	return &PostHandler{s: s, AsynqClient: asynqClient}
}

func (h *PostHandler) SchedulePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.SchedulePost
	if err := c.BodyParser(&req); err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	post, err := h.s.Schedule(c.Context(), userID, &req)
	if err != nil {
		return c.Status(domainStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	// Fast-path trigger; the dispatcher poll loop covers a lost task.
	delay := time.Until(post.ScheduledFor)
	if delay < 0 {
		delay = 0
	}
	if err := queue.EnqueuePost(h.AsynqClient, queue.PublishPostPayload{PostID: post.ID}, delay); err != nil {
		slog.Info(err.Error())
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) ReschedulePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.ReschedulePost
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	post, err := h.s.Reschedule(c.Context(), userID, req.PostID, req.ScheduledFor)
	if err != nil {
		return c.Status(domainStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	delay := time.Until(post.ScheduledFor)
	if delay < 0 {
		delay = 0
	}
	if err := queue.EnqueuePost(h.AsynqClient, queue.PublishPostPayload{PostID: post.ID}, delay); err != nil {
		slog.Info(err.Error())
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) CancelPost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.Query("id")

	if err := h.s.Cancel(c.Context(), userID, postID); err != nil {
		return c.Status(domainStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *PostHandler) RetryPost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req transfer.RetryPost
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	post, err := h.s.Retry(c.Context(), userID, req.PostID, req.ScheduledFor)
	if err != nil {
		return c.Status(domainStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	delay := time.Until(post.ScheduledFor)
	if delay < 0 {
		delay = 0
	}
	if err := queue.EnqueuePost(h.AsynqClient, queue.PublishPostPayload{PostID: post.ID}, delay); err != nil {
		slog.Info(err.Error())
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.Query("id")

	post, err := h.s.PostInfo(c.Context(), userID, postID)
	if err != nil {
		return c.Status(domainStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(post)
}

// ListRange returns all posts whose scheduled time falls in [start, end),
// ordered by time, for the calendar view.
func (h *PostHandler) ListRange(c *fiber.Ctx) error {
	userID := GetUserID(c)

	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid start time",
		})
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid end time",
		})
	}

	posts, err := h.s.Range(c.Context(), userID, start, end)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list posts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

// DayCounts returns per-day totals split by status for one month.
func (h *PostHandler) DayCounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	year := c.QueryInt("year", 0)
	month := c.QueryInt("month", 0)
	if year == 0 || month < 1 || month > 12 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid year or month",
		})
	}

	counts, err := h.s.DayCounts(c.Context(), userID, year, time.Month(month))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to compute day counts",
		})
	}

	return c.Status(fiber.StatusOK).JSON(counts)
}
