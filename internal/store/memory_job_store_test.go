package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tinrab/image-service/internal/domain"
)

func TestMemoryJobStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	job := domain.Job{
		ID:         "job-1",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeURL,
		SourceURL:  "https://example.com/cat.png",
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok, err := s.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.JobStatusCreated {
		t.Fatalf("expected status created, got %s", got.Status)
	}

	updated, err := s.UpdateStatus(ctx, "job-1", domain.JobStatusProcessing)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.JobStatusProcessing {
		t.Fatalf("expected status processing, got %s", updated.Status)
	}

	if err := s.SetResult(ctx, "job-1", "outputs/job-1/result.png", "image/png"); err != nil {
		t.Fatalf("set result: %v", err)
	}
	got, _, _ = s.Get(ctx, "job-1")
	if got.ResultKey != "outputs/job-1/result.png" || got.ResultMIME != "image/png" {
		t.Fatalf("result not recorded: %+v", got)
	}
}

func TestMemoryJobStoreSetFailure(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	if err := s.Create(ctx, domain.Job{ID: "job-2", Status: domain.JobStatusQueued}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SetFailure(ctx, "job-2", "image decode failed"); err != nil {
		t.Fatalf("set failure: %v", err)
	}

	got, _, _ := s.Get(ctx, "job-2")
	if got.Status != domain.JobStatusFailed {
		t.Fatalf("expected status failed, got %s", got.Status)
	}
	if got.Error != "image decode failed" {
		t.Fatalf("expected failure message recorded, got %q", got.Error)
	}
}

func TestMemoryJobStoreMissingJob(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryJobStore()

	if _, ok, err := s.Get(ctx, "nope"); ok || err != nil {
		t.Fatalf("expected absent job, got ok=%v err=%v", ok, err)
	}
	if _, err := s.UpdateStatus(ctx, "nope", domain.JobStatusQueued); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := s.SetResult(ctx, "nope", "k", "image/png"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := s.SetFailure(ctx, "nope", "boom"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
