package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"github.com/tinrab/image-service/internal/domain"
	"github.com/tinrab/image-service/internal/queue"
	"github.com/tinrab/image-service/internal/store"
)

func TestInferFormat(t *testing.T) {
	cases := []struct {
		name    string
		payload queue.TransformImagePayload
		want    string
	}{
		{
			"url source with extension",
			queue.TransformImagePayload{SourceType: domain.SourceTypeURL, SourceURL: "https://example.com/cat.JPG"},
			"jpg",
		},
		{
			"presigned source uses object key",
			queue.TransformImagePayload{SourceType: domain.SourceTypeS3Presigned, SourceURL: "ignored.gif", ObjectKey: "uploads/job/source.webp"},
			"webp",
		},
		{
			"no extension falls back to png",
			queue.TransformImagePayload{SourceType: domain.SourceTypeURL, SourceURL: "https://example.com/cat"},
			"png",
		},
		{
			"unknown extension falls back to png",
			queue.TransformImagePayload{SourceType: domain.SourceTypeURL, SourceURL: "https://example.com/cat.svg"},
			"png",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := inferFormat(tc.payload); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSanitizePathToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"job-1", "job-1"},
		{"a/b..c", "a_b__c"},
		{"  ", "unknown"},
	}
	for _, tc := range cases {
		if got := sanitizePathToken(tc.in); got != tc.want {
			t.Fatalf("sanitizePathToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !isTerminal(fmt.Errorf("%w: bad magic bytes", domain.ErrImageDecode)) {
		t.Fatal("expected decode failures to be terminal")
	}
	if isTerminal(domain.ErrImageFetch) {
		t.Fatal("expected fetch failures to be retryable")
	}
}

func TestFetchSourceUnsupportedTypeSkipsRetry(t *testing.T) {
	s := &Server{logger: log.New(io.Discard, "", 0)}

	_, err := s.fetchSource(context.Background(), queue.TransformImagePayload{SourceType: "carrier_pigeon"})
	if err == nil {
		t.Fatal("expected error for unsupported source type")
	}
}

func TestRecordFailureUpdatesStoreAndNotifies(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	if err := jobStore.Create(context.Background(), domain.Job{
		ID:        "job-1",
		Status:    domain.JobStatusProcessing,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	sender := &captureWebhookSender{}
	s := &Server{
		logger:        log.New(io.Discard, "", 0),
		jobStore:      jobStore,
		webhookClient: sender,
		metrics:       newMetrics(),
	}

	cause := errors.New("image decode failed: bad magic bytes")
	s.recordFailure(context.Background(), queue.TransformImagePayload{
		JobID:      "job-1",
		SourceType: domain.SourceTypeURL,
		WebhookURL: "https://hooks.example.com/done",
	}, cause)

	job, _, _ := jobStore.Get(context.Background(), "job-1")
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected status failed, got %s", job.Status)
	}
	if job.Error != cause.Error() {
		t.Fatalf("expected failure message recorded, got %q", job.Error)
	}

	if sender.event != "job.failed" {
		t.Fatalf("expected job.failed webhook, got %q", sender.event)
	}
	body, ok := sender.payload.(map[string]any)
	if !ok {
		t.Fatalf("expected map payload, got %T", sender.payload)
	}
	if body["error"] != cause.Error() {
		t.Fatalf("expected error in webhook body, got %v", body["error"])
	}
}

func TestDispatchWebhookSkipsEmptyURL(t *testing.T) {
	sender := &captureWebhookSender{}
	s := &Server{
		logger:        log.New(io.Discard, "", 0),
		webhookClient: sender,
	}

	err := s.dispatchWebhook(context.Background(), queue.TransformImagePayload{JobID: "job-2"}, "job.completed", nil)
	if err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if sender.event != "" {
		t.Fatal("expected no webhook to be sent")
	}
}

type captureWebhookSender struct {
	endpoint string
	event    string
	payload  any
}

func (s *captureWebhookSender) Send(_ context.Context, endpoint, event string, payload any) error {
	s.endpoint = endpoint
	s.event = event
	s.payload = payload
	return nil
}
