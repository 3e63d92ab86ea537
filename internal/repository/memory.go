package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/postpilothq/postpilot/internal/models"
)

// MemoryPostRepository is an in-process PostRepository with the same
// conditional-transition semantics as the Postgres implementation. Used by
// tests and by the dispatcher race checks.
type MemoryPostRepository struct {
	mu    sync.Mutex
	posts map[string]*models.ScheduledPost
}

func NewMemoryPostRepository() *MemoryPostRepository {
	return &MemoryPostRepository{posts: make(map[string]*models.ScheduledPost)}
}

func (r *MemoryPostRepository) clone(p *models.ScheduledPost) *models.ScheduledPost {
	cp := *p
	cp.Hashtags = append([]string(nil), p.Hashtags...)
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		cp.PublishedAt = &t
	}
	return &cp
}

func (r *MemoryPostRepository) Create(ctx context.Context, post *models.ScheduledPost) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[post.ID] = r.clone(post)
	return nil
}

func (r *MemoryPostRepository) GetByID(ctx context.Context, id string) (*models.ScheduledPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	if !ok {
		return nil, nil
	}
	return r.clone(post), nil
}

func (r *MemoryPostRepository) CheckByOwnerID(ctx context.Context, id string, ownerID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	post, ok := r.posts[id]
	return ok && post.OwnerID == ownerID, nil
}

func (r *MemoryPostRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*models.ScheduledPost
	for _, post := range r.posts {
		if post.Status == models.PostStatusScheduled && !post.ScheduledFor.After(now) {
			due = append(due, r.clone(post))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *MemoryPostRepository) ClaimForPublishing(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok || post.Status != models.PostStatusScheduled {
		return false, nil
	}
	post.Status = models.PostStatusPublishing
	post.UpdatedAt = now
	return true, nil
}

func (r *MemoryPostRepository) MarkPublished(ctx context.Context, id, platformPostID, platformPostURL string, publishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok {
		return nil
	}
	post.Status = models.PostStatusPublished
	post.PublishedAt = &publishedAt
	post.PlatformPostID = platformPostID
	post.PlatformPostURL = platformPostURL
	post.ErrorCode = ""
	post.ErrorMessage = ""
	post.UpdatedAt = publishedAt
	return nil
}

func (r *MemoryPostRepository) MarkFailed(ctx context.Context, id, errorCode, errorMessage string, retryCount int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok {
		return nil
	}
	post.Status = models.PostStatusFailed
	post.ErrorCode = errorCode
	post.ErrorMessage = errorMessage
	post.RetryCount = retryCount
	post.PublishedAt = nil
	post.PlatformPostID = ""
	post.PlatformPostURL = ""
	post.UpdatedAt = now
	return nil
}

func (r *MemoryPostRepository) RescheduleForRetry(ctx context.Context, id string, retryCount int, nextAttempt, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok || (post.Status != models.PostStatusPublishing && post.Status != models.PostStatusFailed) {
		return false, nil
	}
	post.Status = models.PostStatusScheduled
	post.ScheduledFor = nextAttempt
	post.RetryCount = retryCount
	post.ErrorCode = ""
	post.ErrorMessage = ""
	post.PublishedAt = nil
	post.PlatformPostID = ""
	post.PlatformPostURL = ""
	post.UpdatedAt = now
	return true, nil
}

func (r *MemoryPostRepository) Reschedule(ctx context.Context, id string, scheduledFor, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok || post.Status != models.PostStatusScheduled {
		return false, nil
	}
	post.ScheduledFor = scheduledFor
	post.UpdatedAt = now
	return true, nil
}

func (r *MemoryPostRepository) Cancel(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	post, ok := r.posts[id]
	if !ok || (post.Status != models.PostStatusDraft && post.Status != models.PostStatusScheduled) {
		return false, nil
	}
	post.Status = models.PostStatusCancelled
	post.UpdatedAt = now
	return true, nil
}

func (r *MemoryPostRepository) ListRange(ctx context.Context, ownerID int64, start, end time.Time) ([]*models.ScheduledPost, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.ScheduledPost
	for _, post := range r.posts {
		if post.OwnerID != ownerID {
			continue
		}
		if post.ScheduledFor.Before(start) || !post.ScheduledFor.Before(end) {
			continue
		}
		out = append(out, r.clone(post))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledFor.Before(out[j].ScheduledFor) })
	return out, nil
}

func (r *MemoryPostRepository) DayCounts(ctx context.Context, ownerID int64, monthStart, monthEnd time.Time) ([]models.DayCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byDay := make(map[time.Time]*models.DayCount)
	for _, post := range r.posts {
		if post.OwnerID != ownerID {
			continue
		}
		if post.ScheduledFor.Before(monthStart) || !post.ScheduledFor.Before(monthEnd) {
			continue
		}
		day := post.ScheduledFor.UTC().Truncate(24 * time.Hour)
		dc, ok := byDay[day]
		if !ok {
			dc = &models.DayCount{Day: day}
			byDay[day] = dc
		}
		switch post.Status {
		case models.PostStatusScheduled:
			dc.Scheduled++
		case models.PostStatusPublished:
			dc.Published++
		case models.PostStatusFailed:
			dc.Failed++
		}
	}

	out := make([]models.DayCount, 0, len(byDay))
	for _, dc := range byDay {
		out = append(out, *dc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// MemoryConnectionRepository backs dispatcher and service tests.
type MemoryConnectionRepository struct {
	mu     sync.Mutex
	nextID int64
	conns  map[int64]*models.Connection
}

func NewMemoryConnectionRepository() *MemoryConnectionRepository {
	return &MemoryConnectionRepository{nextID: 1, conns: make(map[int64]*models.Connection)}
}

func (r *MemoryConnectionRepository) GetByID(ctx context.Context, id int64) (*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return nil, nil
	}
	cp := *conn
	return &cp, nil
}

func (r *MemoryConnectionRepository) Create(ctx context.Context, conn *models.Connection) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *conn
	cp.ID = r.nextID
	r.nextID++
	r.conns[cp.ID] = &cp
	return cp.ID, nil
}

func (r *MemoryConnectionRepository) ListByOwnerID(ctx context.Context, ownerID int64) ([]*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Connection
	for _, conn := range r.conns {
		if conn.OwnerID == ownerID {
			cp := *conn
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryConnectionRepository) CheckByOwnerID(ctx context.Context, id, ownerID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	return ok && conn.OwnerID == ownerID, nil
}

func (r *MemoryConnectionRepository) ListExpiringBetween(ctx context.Context, start, end time.Time) ([]*models.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Connection
	for _, conn := range r.conns {
		if !conn.TokenExpiresAt.Before(start) && !conn.TokenExpiresAt.After(end) {
			cp := *conn
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryConnectionRepository) SetTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[id]; ok {
		conn.AccessToken = accessToken
		conn.RefreshToken = refreshToken
		conn.TokenExpiresAt = expiresAt
	}
	return nil
}

func (r *MemoryConnectionRepository) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	return nil
}

// MemoryHistoryRepository records dispatch attempts for assertions.
type MemoryHistoryRepository struct {
	mu      sync.Mutex
	nextID  int64
	records []*models.PublishHistory
}

func NewMemoryHistoryRepository() *MemoryHistoryRepository {
	return &MemoryHistoryRepository{nextID: 1}
}

func (r *MemoryHistoryRepository) Create(ctx context.Context, h *models.PublishHistory) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *h
	cp.ID = r.nextID
	r.nextID++
	r.records = append(r.records, &cp)
	return cp.ID, nil
}

func (r *MemoryHistoryRepository) ListByPostID(ctx context.Context, postID string) ([]*models.PublishHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PublishHistory
	for _, h := range r.records {
		if h.PostID == postID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryHistoryRepository) ListByOwnerID(ctx context.Context, ownerID int64) ([]*models.PublishHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PublishHistory
	for _, h := range r.records {
		if h.OwnerID == ownerID {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}
