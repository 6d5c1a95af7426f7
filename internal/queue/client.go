package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dunamismax/tileflow/internal/domain"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueRender validates job and submits it. The job ID doubles as the task
// ID, so resubmitting a pending job fails with asynq.ErrTaskIDConflict.
func (c *Client) EnqueueRender(ctx context.Context, job domain.RenderJob) (*asynq.TaskInfo, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	if _, err := job.ImageRequest(); err != nil {
		return nil, fmt.Errorf("render job %s: %w", job.ID, err)
	}

	task, err := NewRenderTask(job)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, c.options(job)...)
}

func (c *Client) options(job domain.RenderJob) []asynq.Option {
	return []asynq.Option{
		asynq.Queue(c.queue),
		asynq.TaskID(job.ID),
		asynq.MaxRetry(5),
		asynq.Timeout(3 * time.Minute),
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}
