// Package worker consumes transform jobs from the queue, runs the pipeline
// and persists results to object storage.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tinrab/image-service/internal/config"
	"github.com/tinrab/image-service/internal/domain"
	"github.com/tinrab/image-service/internal/pipeline"
	"github.com/tinrab/image-service/internal/queue"
	"github.com/tinrab/image-service/internal/storage"
	"github.com/tinrab/image-service/internal/store"
	"github.com/tinrab/image-service/internal/webhook"
)

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	fetcher       imageFetcher
	storage       *storage.Client
	webhookClient webhookSender
	jobStore      store.JobStore
	metrics       *metrics
	tracer        trace.Tracer
}

type imageFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	fetcher imageFetcher,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetch client is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		fetcher:       fetcher,
		storage:       storageClient,
		webhookClient: webhookClient,
		jobStore:      jobStore,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("imagesvc/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeTransformImage, s.handleTransformImage)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleTransformImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseTransformImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.transform_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf(
		"Working... job_id=%s source_type=%s object_key=%s",
		payload.JobID,
		payload.SourceType,
		payload.ObjectKey,
	)

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	result, err := s.process(ctx, payload)
	if err != nil {
		s.recordFailure(ctx, payload, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transform failed")

		// Bad parameters and undecodable sources will fail the same way on
		// every attempt; only opaque faults are worth a retry.
		if domain.IsValidationError(err) || isTerminal(err) {
			return fmt.Errorf("transform job %s: %v: %w", payload.JobID, err, asynq.SkipRetry)
		}
		return fmt.Errorf("transform job %s: %w", payload.JobID, err)
	}

	s.logger.Printf("Processed job_id=%s result=%s bytes=%d", payload.JobID, result.objectKey, len(result.encoded.Bytes))
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusSucceeded)
	s.metrics.pixelsProcessedTotal.Add(float64(result.width * result.height))
	s.metrics.resultBytesTotal.Add(float64(len(result.encoded.Bytes)))

	if err := s.dispatchWebhook(ctx, payload, "job.completed", map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusSucceeded,
		"source_type":  payload.SourceType,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"result": map[string]any{
			"object_key": result.objectKey,
			"mime_type":  result.encoded.MIME,
			"bytes":      len(result.encoded.Bytes),
			"width":      result.width,
			"height":     result.height,
		},
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

type jobResult struct {
	objectKey string
	encoded   pipeline.Encoded
	width     int
	height    int
}

func (s *Server) process(ctx context.Context, payload queue.TransformImagePayload) (jobResult, error) {
	data, err := s.fetchSource(ctx, payload)
	if err != nil {
		return jobResult{}, err
	}

	img, err := pipeline.Decode(data)
	if err != nil {
		return jobResult{}, err
	}

	img, err = pipeline.Apply(img, payload.Params)
	if err != nil {
		return jobResult{}, err
	}

	token := strings.TrimSpace(payload.Params.OutputFormat)
	if token == "" {
		token = inferFormat(payload)
	}

	encoded, err := pipeline.Encode(img, token, payload.Params.Quality)
	if err != nil {
		return jobResult{}, err
	}

	objectKey := path.Join("outputs", sanitizePathToken(payload.JobID), "result."+encoded.Format)
	if err := s.storage.WriteObject(ctx, objectKey, encoded.Bytes, encoded.MIME); err != nil {
		return jobResult{}, err
	}

	if err := s.jobStore.SetResult(ctx, payload.JobID, objectKey, encoded.MIME); err != nil {
		s.logger.Printf("job result update failed job_id=%s err=%v", payload.JobID, err)
	}

	bounds := img.Bounds()
	return jobResult{
		objectKey: objectKey,
		encoded:   encoded,
		width:     bounds.Dx(),
		height:    bounds.Dy(),
	}, nil
}

func (s *Server) fetchSource(ctx context.Context, payload queue.TransformImagePayload) ([]byte, error) {
	switch payload.SourceType {
	case domain.SourceTypeURL:
		return s.fetcher.Fetch(ctx, payload.SourceURL)
	case domain.SourceTypeS3Presigned:
		return s.storage.ReadObject(ctx, payload.ObjectKey)
	default:
		return nil, fmt.Errorf("unsupported source_type: %s: %w", payload.SourceType, asynq.SkipRetry)
	}
}

func inferFormat(payload queue.TransformImagePayload) string {
	name := payload.SourceURL
	if payload.SourceType == domain.SourceTypeS3Presigned {
		name = payload.ObjectKey
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return pipeline.DefaultFormat
	}
	if _, err := pipeline.NormalizeFormat(ext); err != nil {
		return pipeline.DefaultFormat
	}
	return ext
}

func (s *Server) recordFailure(ctx context.Context, payload queue.TransformImagePayload, cause error) {
	if s.jobStore != nil {
		if err := s.jobStore.SetFailure(ctx, payload.JobID, cause.Error()); err != nil {
			s.logger.Printf("job failure update failed job_id=%s err=%v", payload.JobID, err)
		}
	}

	if err := s.dispatchWebhook(ctx, payload, "job.failed", map[string]any{
		"job_id":       payload.JobID,
		"status":       domain.JobStatusFailed,
		"source_type":  payload.SourceType,
		"requested_at": payload.RequestedAt,
		"failed_at":    time.Now().UTC(),
		"error":        cause.Error(),
	}); err != nil {
		s.logger.Printf("failure webhook dispatch failed job_id=%s err=%v", payload.JobID, err)
	}
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.TransformImagePayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func isTerminal(err error) bool {
	return errors.Is(err, domain.ErrImageDecode)
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
