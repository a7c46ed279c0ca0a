package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tinrab/image-service/internal/domain"
)

const TypeTransformImage = "image:transform"

type TransformImagePayload struct {
	JobID       string                 `json:"job_id"`
	SourceType  string                 `json:"source_type"`
	SourceURL   string                 `json:"source_url,omitempty"`
	ObjectKey   string                 `json:"object_key,omitempty"`
	WebhookURL  string                 `json:"webhook_url,omitempty"`
	Params      domain.TransformParams `json:"params"`
	RequestedAt time.Time              `json:"requested_at"`
}

func NewTransformImageTask(payload TransformImagePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal transform payload: %w", err)
	}
	return asynq.NewTask(TypeTransformImage, body), nil
}

func ParseTransformImagePayload(task *asynq.Task) (TransformImagePayload, error) {
	var payload TransformImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TransformImagePayload{}, fmt.Errorf("unmarshal transform payload: %w", err)
	}
	return payload, nil
}
