package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/postpilothq/postpilot/internal/models"
)

type PublishHistoryRepository interface {
	Create(ctx context.Context, h *models.PublishHistory) (int64, error)
	ListByPostID(ctx context.Context, postID string) ([]*models.PublishHistory, error)
	ListByOwnerID(ctx context.Context, ownerID int64) ([]*models.PublishHistory, error)
}

type publishHistoryRepository struct {
	db *sql.DB
}

func NewPublishHistoryRepository(db *sql.DB) PublishHistoryRepository {
	return &publishHistoryRepository{db: db}
}

func (r *publishHistoryRepository) Create(ctx context.Context, h *models.PublishHistory) (int64, error) {
	query := `
		INSERT INTO publish_history (owner_id, post_id, connection_id, success, error_code, error_message, retryable)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, h.OwnerID, h.PostID, h.ConnectionID,
		h.Success, h.ErrorCode, h.ErrorMessage, h.Retryable).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *publishHistoryRepository) ListByPostID(ctx context.Context, postID string) ([]*models.PublishHistory, error) {
	query := `SELECT id, owner_id, post_id, connection_id, success, error_code, error_message, retryable, created_at
		FROM publish_history WHERE post_id = $1 ORDER BY created_at ASC`
	return r.list(ctx, query, postID)
}

func (r *publishHistoryRepository) ListByOwnerID(ctx context.Context, ownerID int64) ([]*models.PublishHistory, error) {
	query := `SELECT id, owner_id, post_id, connection_id, success, error_code, error_message, retryable, created_at
		FROM publish_history WHERE owner_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, ownerID)
}

func (r *publishHistoryRepository) list(ctx context.Context, query string, arg any) ([]*models.PublishHistory, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var hs []*models.PublishHistory
	for rows.Next() {
		var h models.PublishHistory
		err := rows.Scan(&h.ID, &h.OwnerID, &h.PostID, &h.ConnectionID, &h.Success,
			&h.ErrorCode, &h.ErrorMessage, &h.Retryable, &h.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		hs = append(hs, &h)
	}
	return hs, rows.Err()
}
