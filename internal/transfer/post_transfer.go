package transfer

import "time"

type SchedulePost struct {
	ConnectionID int64     `json:"connection_id"`
	Caption      string    `json:"caption"`
	Hashtags     []string  `json:"hashtags,omitempty"`
	ImageURL     string    `json:"image_url,omitempty"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Timezone     string    `json:"timezone,omitempty"`
	Draft        bool      `json:"draft,omitempty"`
}

type ReschedulePost struct {
	PostID       string    `json:"post_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

type RetryPost struct {
	PostID       string     `json:"post_id"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}
