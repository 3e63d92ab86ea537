package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilothq/postpilot/internal/models"
)

type ConnectionRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Connection, error)
	Create(ctx context.Context, conn *models.Connection) (int64, error)
	ListByOwnerID(ctx context.Context, ownerID int64) ([]*models.Connection, error)
	CheckByOwnerID(ctx context.Context, id, ownerID int64) (bool, error)
	ListExpiringBetween(ctx context.Context, start, end time.Time) ([]*models.Connection, error)
	SetTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error
	Remove(ctx context.Context, id int64) error
}

type connectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `id, owner_id, platform, account_id, account_type, account_name,
	account_username, profile_picture, access_token, refresh_token, token_expires_at, created_at`

func scanConnection(row interface{ Scan(dest ...any) error }) (*models.Connection, error) {
	var conn models.Connection
	err := row.Scan(&conn.ID, &conn.OwnerID, &conn.Platform, &conn.AccountID, &conn.AccountType,
		&conn.AccountName, &conn.AccountUsername, &conn.ProfilePicture,
		&conn.AccessToken, &conn.RefreshToken, &conn.TokenExpiresAt, &conn.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *connectionRepository) GetByID(ctx context.Context, id int64) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return conn, nil
}

func (r *connectionRepository) Create(ctx context.Context, conn *models.Connection) (int64, error) {
	query := `
		INSERT INTO connections (owner_id, platform, account_id, account_type, account_name,
			account_username, profile_picture, access_token, refresh_token, token_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, query, conn.OwnerID, conn.Platform, conn.AccountID,
		conn.AccountType, conn.AccountName, conn.AccountUsername, conn.ProfilePicture,
		conn.AccessToken, conn.RefreshToken, conn.TokenExpiresAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *connectionRepository) ListByOwnerID(ctx context.Context, ownerID int64) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE owner_id = $1`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

func (r *connectionRepository) CheckByOwnerID(ctx context.Context, id, ownerID int64) (bool, error) {
	query := `SELECT 1 FROM connections WHERE id = $1 AND owner_id = $2`

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

func (r *connectionRepository) ListExpiringBetween(ctx context.Context, start, end time.Time) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections
		WHERE token_expires_at >= $1 AND token_expires_at <= $2`
	rows, err := r.db.QueryContext(ctx, query, start, end)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

func (r *connectionRepository) SetTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `UPDATE connections SET access_token = $1, refresh_token = $2, token_expires_at = $3 WHERE id = $4`
	_, err := r.db.ExecContext(ctx, query, accessToken, refreshToken, expiresAt, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *connectionRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM connections WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
