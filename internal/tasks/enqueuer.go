package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/hugh/ia-marketing/pkg/queue"
)

// Enqueuer puts dispatch tasks on the critical queue.
type Enqueuer struct {
	client   *asynq.Client
	maxRetry int
}

func NewEnqueuer(client *asynq.Client, maxRetry int) *Enqueuer {
	if maxRetry <= 0 {
		maxRetry = 5
	}
	return &Enqueuer{client: client, maxRetry: maxRetry}
}

// EnqueueDispatch is safe to call twice for the same job: the task id is
// derived from the job id and a second enqueue is dropped.
func (e *Enqueuer) EnqueueDispatch(ctx context.Context, jobID uuid.UUID) error {
	task, err := NewDispatchTask(jobID)
	if err != nil {
		return fmt.Errorf("create dispatch task: %w", err)
	}

	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(queue.QueueCritical),
		asynq.MaxRetry(e.maxRetry),
		asynq.TaskID("dispatch:"+jobID.String()),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue dispatch: %w", err)
	}
	return nil
}
