package service

import "errors"

// Domain errors for the post mutation surface. Handlers map these onto
// HTTP statuses; callers distinguish them with errors.Is.
var (
	ErrPostNotFound       = errors.New("post not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrNotReschedulable   = errors.New("post can only be rescheduled while scheduled")
	ErrPublishInFlight    = errors.New("post is currently publishing")
	ErrNotCancellable     = errors.New("post can no longer be cancelled")
	ErrNotRetryable       = errors.New("post is not in a failed state")
	ErrRetryCeilingHit    = errors.New("retry ceiling reached")
)
