package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeURL         = "url"
	SourceTypeS3Presigned = "s3_presigned"
)

// CreateJobRequest is the body of POST /v1/jobs. URL sources are enqueued
// immediately; presigned sources get an upload URL and are started once the
// object exists.
type CreateJobRequest struct {
	SourceType string          `json:"source_type"`
	SourceURL  string          `json:"source_url,omitempty"`
	WebhookURL string          `json:"webhook_url,omitempty"`
	Params     TransformParams `json:"params"`
}

type Job struct {
	ID         string
	Status     string
	SourceType string
	SourceURL  string
	WebhookURL string
	ObjectKey  string
	Params     TransformParams
	ResultKey  string
	ResultMIME string
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeURL && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeURL {
		rawURL := strings.TrimSpace(r.SourceURL)
		if rawURL == "" {
			return errors.New("source_url is required for source_type=url")
		}
		parsed, err := url.Parse(rawURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("source_url is not an absolute URL: %s", rawURL)
		}
	}
	if r.Params.IsZero() {
		return errors.New("params must request at least one transformation or output option")
	}
	return nil
}
