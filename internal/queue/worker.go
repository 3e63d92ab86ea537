package queue

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"
)

// HandlePublishPostTask dispatches one due post. The dispatcher re-reads
// the post and claims it conditionally, so a stale or duplicate task is
// harmless.
func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return q.d.DispatchByID(ctx, payload.PostID)
}
