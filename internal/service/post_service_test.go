package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilothq/postpilot/internal/models"
	"github.com/postpilothq/postpilot/internal/repository"
	"github.com/postpilothq/postpilot/internal/transfer"
)

const testCeiling = 3

func newTestService(t *testing.T) (PostService, *repository.MemoryPostRepository, int64, time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	pr := repository.NewMemoryPostRepository()
	cr := repository.NewMemoryConnectionRepository()
	connID, err := cr.Create(context.Background(), &models.Connection{
		OwnerID:  1,
		Platform: "linkedin",
	})
	require.NoError(t, err)

	svc := NewPostServiceAt(pr, cr, testCeiling, func() time.Time { return now })
	return svc, pr, connID, now
}

func seedPost(t *testing.T, pr *repository.MemoryPostRepository, post *models.ScheduledPost) {
	t.Helper()
	require.NoError(t, pr.Create(context.Background(), post))
}

func TestSchedule(t *testing.T) {
	svc, _, connID, now := newTestService(t)
	ctx := context.Background()

	post, err := svc.Schedule(ctx, 1, &transfer.SchedulePost{
		ConnectionID: connID,
		Caption:      "hello",
		Hashtags:     []string{"go"},
		ScheduledFor: now.Add(time.Hour),
		Timezone:     "UTC",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, post.ID)
	assert.Equal(t, models.PostStatusScheduled, post.Status)
	assert.Equal(t, 0, post.RetryCount)
}

func TestScheduleDraft(t *testing.T) {
	svc, _, connID, now := newTestService(t)

	post, err := svc.Schedule(context.Background(), 1, &transfer.SchedulePost{
		ConnectionID: connID,
		Caption:      "not yet",
		ScheduledFor: now.Add(time.Hour),
		Draft:        true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusDraft, post.Status)
}

func TestScheduleValidation(t *testing.T) {
	svc, _, connID, now := newTestService(t)
	ctx := context.Background()

	_, err := svc.Schedule(ctx, 1, &transfer.SchedulePost{ConnectionID: connID, ScheduledFor: now})
	assert.Error(t, err, "empty caption")

	_, err = svc.Schedule(ctx, 1, &transfer.SchedulePost{ConnectionID: connID, Caption: "x"})
	assert.Error(t, err, "missing scheduled time")

	_, err = svc.Schedule(ctx, 1, &transfer.SchedulePost{ConnectionID: 999, Caption: "x", ScheduledFor: now})
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	// Connection owned by someone else is indistinguishable from missing.
	_, err = svc.Schedule(ctx, 2, &transfer.SchedulePost{ConnectionID: connID, Caption: "x", ScheduledFor: now})
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}

func TestReschedule(t *testing.T) {
	svc, pr, connID, now := newTestService(t)
	ctx := context.Background()

	seedPost(t, pr, &models.ScheduledPost{
		ID: "p1", OwnerID: 1, ConnectionID: connID,
		Status: models.PostStatusScheduled, ScheduledFor: now.Add(time.Hour),
	})

	moved, err := svc.Reschedule(ctx, 1, "p1", now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, now.Add(48*time.Hour), moved.ScheduledFor)
	assert.Equal(t, models.PostStatusScheduled, moved.Status)
}

func TestRescheduleRejectedWhileInFlight(t *testing.T) {
	svc, pr, connID, now := newTestService(t)

	seedPost(t, pr, &models.ScheduledPost{
		ID: "p1", OwnerID: 1, ConnectionID: connID,
		Status: models.PostStatusPublishing, ScheduledFor: now,
	})

	_, err := svc.Reschedule(context.Background(), 1, "p1", now.Add(time.Hour))
	assert.ErrorIs(t, err, ErrPublishInFlight)
}

func TestRescheduleIllegalStates(t *testing.T) {
	svc, pr, connID, now := newTestService(t)
	ctx := context.Background()

	for i, status := range []string{
		models.PostStatusPublished,
		models.PostStatusFailed,
		models.PostStatusCancelled,
	} {
		id := string(rune('a' + i))
		seedPost(t, pr, &models.ScheduledPost{
			ID: id, OwnerID: 1, ConnectionID: connID, Status: status, ScheduledFor: now,
		})
		_, err := svc.Reschedule(ctx, 1, id, now.Add(time.Hour))
		assert.ErrorIs(t, err, ErrNotReschedulable, "status %s", status)
	}
}

func TestCancel(t *testing.T) {
	svc, pr, connID, now := newTestService(t)
	ctx := context.Background()

	seedPost(t, pr, &models.ScheduledPost{
		ID: "p1", OwnerID: 1, ConnectionID: connID,
		Status: models.PostStatusScheduled, ScheduledFor: now.Add(time.Hour),
	})
	require.NoError(t, svc.Cancel(ctx, 1, "p1"))

	post, err := svc.PostInfo(ctx, 1, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PostStatusCancelled, post.Status)

	// Cancelling twice is rejected; the post is no longer cancellable.
	assert.ErrorIs(t, svc.Cancel(ctx, 1, "p1"), ErrNotCancellable)
}

func TestCancelRejectedWhileInFlight(t *testing.T) {
	svc, pr, connID, now := newTestService(t)

	seedPost(t, pr, &models.ScheduledPost{
		ID: "p1", OwnerID: 1, ConnectionID: connID,
		Status: models.PostStatusPublishing, ScheduledFor: now,
	})

	err := svc.Cancel(context.Background(), 1, "p1")
	assert.ErrorIs(t, err, ErrPublishInFlight)

	post, _ := pr.GetByID(context.Background(), "p1")
	assert.Equal(t, models.PostStatusPublishing, post.Status, "state unchanged")
}

func TestCancelPublishedRejected(t *testing.T) {
	svc, pr, connID, now := newTestService(t)

	seedPost(t, pr, &models.ScheduledPost{
		ID: "p1", OwnerID: 1, ConnectionID: connID,
		Status: models.PostStatusPublished, ScheduledFor: now,
	})

	assert.ErrorIs(t, svc.Cancel(context.Background(), 1, "p1"), ErrNotCancellable)
}

func TestRetryFromFailure(t *testing.T) {
	svc, pr, connID, now := newTestService(t)
	ctx := context.Background()

	seedPost(t, pr, &models.ScheduledPost{
		ID: "p1", OwnerID: 1, ConnectionID: connID,
		Status: models.PostStatusFailed, ScheduledFor: now.Add(-time.Hour),
		RetryCount: 1, ErrorCode: "platform_error", ErrorMessage: "upstream 500",
	})

	at := now.Add(30 * time.Minute)
	post, err := svc.Retry(ctx, 1, "p1", &at)
	require.NoError(t, err)

	assert.Equal(t, models.PostStatusScheduled, post.Status)
	assert.Equal(t, at, post.ScheduledFor)
	assert.Equal(t, 2, post.RetryCount, "manual retry never resets the count")
	assert.Empty(t, post.ErrorCode)
	assert.Empty(t, post.ErrorMessage)
}

func TestRetryDefaultsToNow(t *testing.T) {
	svc, pr, connID, now := newTestService(t)

	seedPost(t, pr, &models.ScheduledPost{
		ID: "p1", OwnerID: 1, ConnectionID: connID,
		Status: models.PostStatusFailed, ScheduledFor: now.Add(-time.Hour),
	})

	post, err := svc.Retry(context.Background(), 1, "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, now, post.ScheduledFor)
}

func TestRetryAtCeilingIsTerminal(t *testing.T) {
	svc, pr, connID, now := newTestService(t)

	seedPost(t, pr, &models.ScheduledPost{
		ID: "p1", OwnerID: 1, ConnectionID: connID,
		Status: models.PostStatusFailed, ScheduledFor: now,
		RetryCount: testCeiling,
	})

	_, err := svc.Retry(context.Background(), 1, "p1", nil)
	assert.ErrorIs(t, err, ErrRetryCeilingHit)
}

func TestRetryOnlyFromFailed(t *testing.T) {
	svc, pr, connID, now := newTestService(t)

	seedPost(t, pr, &models.ScheduledPost{
		ID: "p1", OwnerID: 1, ConnectionID: connID,
		Status: models.PostStatusScheduled, ScheduledFor: now,
	})

	_, err := svc.Retry(context.Background(), 1, "p1", nil)
	assert.ErrorIs(t, err, ErrNotRetryable)
}

func TestOwnershipIsEnforced(t *testing.T) {
	svc, pr, connID, now := newTestService(t)
	ctx := context.Background()

	seedPost(t, pr, &models.ScheduledPost{
		ID: "p1", OwnerID: 1, ConnectionID: connID,
		Status: models.PostStatusScheduled, ScheduledFor: now,
	})

	_, err := svc.PostInfo(ctx, 2, "p1")
	assert.ErrorIs(t, err, ErrPostNotFound)
	assert.ErrorIs(t, svc.Cancel(ctx, 2, "p1"), ErrPostNotFound)

	_, err = svc.PostInfo(ctx, 1, "missing")
	assert.ErrorIs(t, err, ErrPostNotFound)
}

func TestRangeAndDayCounts(t *testing.T) {
	svc, pr, connID, _ := newTestService(t)
	ctx := context.Background()

	day1 := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 12, 18, 0, 0, 0, time.UTC)

	seedPost(t, pr, &models.ScheduledPost{ID: "a", OwnerID: 1, ConnectionID: connID, Status: models.PostStatusScheduled, ScheduledFor: day1})
	seedPost(t, pr, &models.ScheduledPost{ID: "b", OwnerID: 1, ConnectionID: connID, Status: models.PostStatusPublished, ScheduledFor: day1.Add(2 * time.Hour)})
	seedPost(t, pr, &models.ScheduledPost{ID: "c", OwnerID: 1, ConnectionID: connID, Status: models.PostStatusFailed, ScheduledFor: day2})
	seedPost(t, pr, &models.ScheduledPost{ID: "other", OwnerID: 2, ConnectionID: connID, Status: models.PostStatusScheduled, ScheduledFor: day1})

	posts, err := svc.Range(ctx, 1, day1, day1.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "a", posts[0].ID)
	assert.Equal(t, "b", posts[1].ID)

	counts, err := svc.DayCounts(ctx, 1, 2025, time.June)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 1, counts[0].Scheduled)
	assert.Equal(t, 1, counts[0].Published)
	assert.Equal(t, 1, counts[1].Failed)
}
