package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/repository"
	"github.com/postpilothq/postpilot/internal/transfer"
)

// PostService is the mutation and query surface over the post store. All
// client-visible lifecycle changes come through here; only the dispatcher
// touches the publishing transitions directly.
type PostService interface {
	Schedule(ctx context.Context, ownerID int64, req *transfer.SchedulePost) (*models.ScheduledPost, error)
	Reschedule(ctx context.Context, ownerID int64, postID string, scheduledFor time.Time) (*models.ScheduledPost, error)
	Cancel(ctx context.Context, ownerID int64, postID string) error
	Retry(ctx context.Context, ownerID int64, postID string, scheduledFor *time.Time) (*models.ScheduledPost, error)
	PostInfo(ctx context.Context, ownerID int64, postID string) (*models.ScheduledPost, error)
	Range(ctx context.Context, ownerID int64, start, end time.Time) ([]*models.ScheduledPost, error)
	DayCounts(ctx context.Context, ownerID int64, year int, month time.Month) ([]models.DayCount, error)
}

type postService struct {
	pr           repository.PostRepository
	cr           repository.ConnectionRepository
	retryCeiling int
	now          func() time.Time
}

func NewPostService(pr repository.PostRepository, cr repository.ConnectionRepository, retryCeiling int) PostService {
	return &postService{pr: pr, cr: cr, retryCeiling: retryCeiling, now: time.Now}
}

// NewPostServiceAt injects the time source, for deterministic tests.
func NewPostServiceAt(pr repository.PostRepository, cr repository.ConnectionRepository, retryCeiling int, now func() time.Time) PostService {
	return &postService{pr: pr, cr: cr, retryCeiling: retryCeiling, now: now}
}

func (s *postService) Schedule(ctx context.Context, ownerID int64, req *transfer.SchedulePost) (*models.ScheduledPost, error) {
	if req == nil || req.Caption == "" {
		err := errors.New("caption cannot be empty")
		slog.Info(err.Error())
		return nil, err
	}
	if req.ScheduledFor.IsZero() {
		err := errors.New("scheduled time is required")
		slog.Info(err.Error())
		return nil, err
	}

	ok, err := s.cr.CheckByOwnerID(ctx, req.ConnectionID, ownerID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConnectionNotFound
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	status := models.PostStatusScheduled
	if req.Draft {
		status = models.PostStatusDraft
	}

	now := s.now()
	post := &models.ScheduledPost{
		ID:           id,
		OwnerID:      ownerID,
		ConnectionID: req.ConnectionID,
		Caption:      req.Caption,
		Hashtags:     req.Hashtags,
		ImageURL:     req.ImageURL,
		ScheduledFor: req.ScheduledFor,
		Timezone:     req.Timezone,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.pr.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("error creating post: %w", err)
	}

	return post, nil
}

func (s *postService) Reschedule(ctx context.Context, ownerID int64, postID string, scheduledFor time.Time) (*models.ScheduledPost, error) {
	post, err := s.owned(ctx, ownerID, postID)
	if err != nil {
		return nil, err
	}

	if post.Status == models.PostStatusPublishing {
		return nil, ErrPublishInFlight
	}
	if post.Status != models.PostStatusScheduled {
		return nil, ErrNotReschedulable
	}

	moved, err := s.pr.Reschedule(ctx, postID, scheduledFor, s.now())
	if err != nil {
		return nil, err
	}
	if !moved {
		// Lost a race against a dispatch claim between the read and
		// the conditional update.
		return nil, ErrNotReschedulable
	}

	return s.pr.GetByID(ctx, postID)
}

func (s *postService) Cancel(ctx context.Context, ownerID int64, postID string) error {
	post, err := s.owned(ctx, ownerID, postID)
	if err != nil {
		return err
	}

	// Rejected, not ignored, so the caller can tell "will not run" from
	// "already committed".
	if post.Status == models.PostStatusPublishing {
		return ErrPublishInFlight
	}
	if post.Status != models.PostStatusDraft && post.Status != models.PostStatusScheduled {
		return ErrNotCancellable
	}

	cancelled, err := s.pr.Cancel(ctx, postID, s.now())
	if err != nil {
		return err
	}
	if !cancelled {
		return ErrNotCancellable
	}
	return nil
}

// Retry re-enters the normal scheduler flow from a terminal failure. The
// retry count is never reset, so repeated manual retries still converge on
// the ceiling and a post at the ceiling stays terminal.
func (s *postService) Retry(ctx context.Context, ownerID int64, postID string, scheduledFor *time.Time) (*models.ScheduledPost, error) {
	post, err := s.owned(ctx, ownerID, postID)
	if err != nil {
		return nil, err
	}

	if post.Status != models.PostStatusFailed {
		return nil, ErrNotRetryable
	}
	if post.RetryCount >= s.retryCeiling {
		return nil, ErrRetryCeilingHit
	}

	now := s.now()
	at := now
	if scheduledFor != nil {
		at = *scheduledFor
	}

	moved, err := s.pr.RescheduleForRetry(ctx, postID, post.RetryCount+1, at, now)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, ErrNotRetryable
	}

	return s.pr.GetByID(ctx, postID)
}

func (s *postService) PostInfo(ctx context.Context, ownerID int64, postID string) (*models.ScheduledPost, error) {
	return s.owned(ctx, ownerID, postID)
}

func (s *postService) Range(ctx context.Context, ownerID int64, start, end time.Time) ([]*models.ScheduledPost, error) {
	return s.pr.ListRange(ctx, ownerID, start, end)
}

func (s *postService) DayCounts(ctx context.Context, ownerID int64, year int, month time.Month) ([]models.DayCount, error) {
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	return s.pr.DayCounts(ctx, ownerID, monthStart, monthEnd)
}

func (s *postService) owned(ctx context.Context, ownerID int64, postID string) (*models.ScheduledPost, error) {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post == nil || post.OwnerID != ownerID {
		return nil, ErrPostNotFound
	}
	return post, nil
}
