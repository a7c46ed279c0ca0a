package queue

import (
	"testing"
	"time"

	"github.com/tinrab/image-service/internal/domain"
)

func TestTransformImageTaskRoundTrip(t *testing.T) {
	width := 120
	payload := TransformImagePayload{
		JobID:      "job-42",
		SourceType: domain.SourceTypeURL,
		SourceURL:  "https://example.com/cat.png",
		WebhookURL: "https://hooks.example.com/done",
		Params: domain.TransformParams{
			Width:        &width,
			Filter:       "blur:2",
			OutputFormat: "webp",
		},
		RequestedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}

	task, err := NewTransformImageTask(payload)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != TypeTransformImage {
		t.Fatalf("expected task type %s, got %s", TypeTransformImage, task.Type())
	}

	parsed, err := ParseTransformImagePayload(task)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if parsed.JobID != payload.JobID {
		t.Fatalf("expected job id %s, got %s", payload.JobID, parsed.JobID)
	}
	if parsed.Params.Width == nil || *parsed.Params.Width != width {
		t.Fatalf("expected width %d to survive, got %v", width, parsed.Params.Width)
	}
	if parsed.Params.Filter != "blur:2" || parsed.Params.OutputFormat != "webp" {
		t.Fatalf("params did not survive: %+v", parsed.Params)
	}
	if !parsed.RequestedAt.Equal(payload.RequestedAt) {
		t.Fatalf("expected requested_at %v, got %v", payload.RequestedAt, parsed.RequestedAt)
	}
}
