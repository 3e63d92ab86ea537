package models

import "time"

type ScheduledPost struct {
	ID              string     `db:"id" json:"id"`
	OwnerID         int64      `db:"owner_id" json:"owner_id"`
	ConnectionID    int64      `db:"connection_id" json:"connection_id"`
	Caption         string     `db:"caption" json:"caption"`
	Hashtags        []string   `db:"hashtags" json:"hashtags"`
	ImageURL        string     `db:"image_url" json:"image_url,omitempty"`
	ScheduledFor    time.Time  `db:"scheduled_for" json:"scheduled_for"`
	Timezone        string     `db:"timezone" json:"timezone"`
	Status          string     `db:"status" json:"status"`
	PublishedAt     *time.Time `db:"published_at" json:"published_at,omitempty"`
	PlatformPostID  string     `db:"platform_post_id" json:"platform_post_id,omitempty"`
	PlatformPostURL string     `db:"platform_post_url" json:"platform_post_url,omitempty"`
	ErrorMessage    string     `db:"error_message" json:"error_message,omitempty"`
	ErrorCode       string     `db:"error_code" json:"error_code,omitempty"`
	RetryCount      int        `db:"retry_count" json:"retry_count"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
	PostStatusCancelled  = "cancelled"
)

// PublishHistory is one record per dispatch attempt, kept for audit.
type PublishHistory struct {
	ID           int64     `db:"id" json:"id"`
	OwnerID      int64     `db:"owner_id" json:"owner_id"`
	PostID       string    `db:"post_id" json:"post_id"`
	ConnectionID int64     `db:"connection_id" json:"connection_id"`
	Success      bool      `db:"success" json:"success"`
	ErrorCode    string    `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	Retryable    bool      `db:"retryable" json:"retryable"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DayCount is the per-day calendar rollup for one month.
type DayCount struct {
	Day       time.Time `json:"day"`
	Scheduled int       `json:"scheduled"`
	Published int       `json:"published"`
	Failed    int       `json:"failed"`
}

type MediaAsset struct {
	ID        int64     `db:"id"`
	OwnerID   int64     `db:"owner_id"`
	FileName  string    `db:"file_name"`
	FileType  string    `db:"file_type"`
	FileSize  int64     `db:"file_size"`
	FileURL   string    `db:"file_url"`
	CreatedAt time.Time `db:"created_at"`
}
