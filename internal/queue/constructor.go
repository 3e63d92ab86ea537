package queue

import (
	"github.com/postpilothq/postpilot/internal/dispatch"
)

// Queue bridges asynq tasks onto the dispatcher. The delayed task is the
// fast path; the dispatcher's own poll loop is the safety net for tasks
// Redis loses.
type Queue struct {
	d *dispatch.Dispatcher
}

func NewQueue(d *dispatch.Dispatcher) *Queue {
	return &Queue{d: d}
}

const TaskTypePublishPost = "publish:post"

type PublishPostPayload struct {
	PostID string `json:"post_id"`
}
