package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/postpilothq/postpilot/internal/models"
)

// PostRepository is the single source of truth for scheduled posts. Every
// lifecycle transition goes through a conditional update keyed on the
// expected prior status, so concurrent workers cannot double-own a post.
type PostRepository interface {
	Create(ctx context.Context, post *models.ScheduledPost) error
	GetByID(ctx context.Context, id string) (*models.ScheduledPost, error)
	CheckByOwnerID(ctx context.Context, id string, ownerID int64) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error)
	ClaimForPublishing(ctx context.Context, id string, now time.Time) (bool, error)
	MarkPublished(ctx context.Context, id, platformPostID, platformPostURL string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id, errorCode, errorMessage string, retryCount int, now time.Time) error
	RescheduleForRetry(ctx context.Context, id string, retryCount int, nextAttempt, now time.Time) (bool, error)
	Reschedule(ctx context.Context, id string, scheduledFor, now time.Time) (bool, error)
	Cancel(ctx context.Context, id string, now time.Time) (bool, error)
	ListRange(ctx context.Context, ownerID int64, start, end time.Time) ([]*models.ScheduledPost, error)
	DayCounts(ctx context.Context, ownerID int64, monthStart, monthEnd time.Time) ([]models.DayCount, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, owner_id, connection_id, caption, hashtags, image_url, scheduled_for, timezone,
	status, published_at, platform_post_id, platform_post_url, error_message, error_code, retry_count,
	created_at, updated_at`

func (r *postRepository) Create(ctx context.Context, post *models.ScheduledPost) error {
	query := `
		INSERT INTO scheduled_posts (id, owner_id, connection_id, caption, hashtags, image_url,
			scheduled_for, timezone, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		post.ID, post.OwnerID, post.ConnectionID, post.Caption, pq.Array(post.Hashtags),
		post.ImageURL, post.ScheduledFor, post.Timezone, post.Status, post.CreatedAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func scanPost(row interface{ Scan(dest ...any) error }) (*models.ScheduledPost, error) {
	var post models.ScheduledPost
	err := row.Scan(&post.ID, &post.OwnerID, &post.ConnectionID, &post.Caption,
		pq.Array(&post.Hashtags), &post.ImageURL, &post.ScheduledFor, &post.Timezone,
		&post.Status, &post.PublishedAt, &post.PlatformPostID, &post.PlatformPostURL,
		&post.ErrorMessage, &post.ErrorCode, &post.RetryCount, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts WHERE id = $1`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) CheckByOwnerID(ctx context.Context, id string, ownerID int64) (bool, error) {
	query := `SELECT 1 FROM scheduled_posts WHERE id = $1 AND owner_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return result == 1, nil
}

// ListDue returns scheduled posts whose time has arrived. Posts already in
// publishing are owned by an in-flight dispatch and never surface here.
func (r *postRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for ASC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, models.PostStatusScheduled, now, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// ClaimForPublishing atomically moves scheduled -> publishing. A false
// return means another worker won the race; that is not an error.
func (r *postRepository) ClaimForPublishing(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `UPDATE scheduled_posts SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, models.PostStatusPublishing, now, id, models.PostStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *postRepository) MarkPublished(ctx context.Context, id, platformPostID, platformPostURL string, publishedAt time.Time) error {
	query := `UPDATE scheduled_posts
		SET status = $1, published_at = $2, platform_post_id = $3, platform_post_url = $4,
			error_message = '', error_code = '', updated_at = $2
		WHERE id = $5`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusPublished, publishedAt, platformPostID, platformPostURL, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) MarkFailed(ctx context.Context, id, errorCode, errorMessage string, retryCount int, now time.Time) error {
	query := `UPDATE scheduled_posts
		SET status = $1, error_code = $2, error_message = $3, retry_count = $4,
			published_at = NULL, platform_post_id = '', platform_post_url = '', updated_at = $5
		WHERE id = $6`
	_, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, errorCode, errorMessage, retryCount, now, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// RescheduleForRetry bounces a post back onto the normal scheduler path
// after a retryable failure. Error fields move to the history table; the
// post record keeps only the incremented retry count. Legal from
// publishing (automatic) and failed (manual).
func (r *postRepository) RescheduleForRetry(ctx context.Context, id string, retryCount int, nextAttempt, now time.Time) (bool, error) {
	query := `UPDATE scheduled_posts
		SET status = $1, scheduled_for = $2, retry_count = $3,
			error_message = '', error_code = '', published_at = NULL,
			platform_post_id = '', platform_post_url = '', updated_at = $4
		WHERE id = $5 AND status IN ($6, $7)`
	res, err := r.db.ExecContext(ctx, query, models.PostStatusScheduled, nextAttempt, retryCount, now, id,
		models.PostStatusPublishing, models.PostStatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Reschedule moves a pending post to a new instant. Only legal before a
// dispatch claims it.
func (r *postRepository) Reschedule(ctx context.Context, id string, scheduledFor, now time.Time) (bool, error) {
	query := `UPDATE scheduled_posts SET scheduled_for = $1, updated_at = $2
		WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, scheduledFor, now, id, models.PostStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// Cancel is legal only from draft or scheduled. A post mid-publish keeps
// running and honors its own outcome.
func (r *postRepository) Cancel(ctx context.Context, id string, now time.Time) (bool, error) {
	query := `UPDATE scheduled_posts SET status = $1, updated_at = $2
		WHERE id = $3 AND status IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, query, models.PostStatusCancelled, now, id,
		models.PostStatusDraft, models.PostStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *postRepository) ListRange(ctx context.Context, ownerID int64, start, end time.Time) ([]*models.ScheduledPost, error) {
	query := `SELECT ` + postColumns + ` FROM scheduled_posts
		WHERE owner_id = $1 AND scheduled_for >= $2 AND scheduled_for < $3
		ORDER BY scheduled_for ASC`

	rows, err := r.db.QueryContext(ctx, query, ownerID, start, end)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.ScheduledPost
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func (r *postRepository) DayCounts(ctx context.Context, ownerID int64, monthStart, monthEnd time.Time) ([]models.DayCount, error) {
	query := `
		SELECT date_trunc('day', scheduled_for) AS day,
			COUNT(*) FILTER (WHERE status = $1) AS scheduled,
			COUNT(*) FILTER (WHERE status = $2) AS published,
			COUNT(*) FILTER (WHERE status = $3) AS failed
		FROM scheduled_posts
		WHERE owner_id = $4 AND scheduled_for >= $5 AND scheduled_for < $6
		GROUP BY day
		ORDER BY day ASC
	`
	rows, err := r.db.QueryContext(ctx, query,
		models.PostStatusScheduled, models.PostStatusPublished, models.PostStatusFailed,
		ownerID, monthStart, monthEnd)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var counts []models.DayCount
	for rows.Next() {
		var dc models.DayCount
		if err := rows.Scan(&dc.Day, &dc.Scheduled, &dc.Published, &dc.Failed); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}
