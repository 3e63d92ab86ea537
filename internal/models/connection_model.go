package models

import "time"

// Connection links an owner to one external platform account. A user may
// hold several connections to the same platform.
type Connection struct {
	ID              int64     `db:"id" json:"id"`
	OwnerID         int64     `db:"owner_id" json:"owner_id"`
	Platform        string    `db:"platform" json:"platform"`
	AccountID       string    `db:"account_id" json:"account_id"`
	AccountType     string    `db:"account_type" json:"account_type"`
	AccountName     string    `db:"account_name" json:"account_name"`
	AccountUsername string    `db:"account_username" json:"account_username"`
	ProfilePicture  string    `db:"profile_picture" json:"profile_picture"`
	AccessToken     string    `db:"access_token" json:"-"`
	RefreshToken    string    `db:"refresh_token" json:"-"`
	TokenExpiresAt  time.Time `db:"token_expires_at" json:"token_expires_at"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

const (
	AccountTypeIndividual   = "individual"
	AccountTypeOrganization = "organization"
)
