package queue

import (
	"fmt"

	"github.com/hibiken/asynq"
	jsoniter "github.com/json-iterator/go"

	"github.com/dunamismax/tileflow/internal/domain"
)

const TypeRenderTile = "iiif:render"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func NewRenderTask(job domain.RenderJob) (*asynq.Task, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal render payload: %w", err)
	}
	return asynq.NewTask(TypeRenderTile, body), nil
}

func ParseRenderPayload(task *asynq.Task) (domain.RenderJob, error) {
	var job domain.RenderJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return domain.RenderJob{}, fmt.Errorf("unmarshal render payload: %w", err)
	}
	return job, nil
}
