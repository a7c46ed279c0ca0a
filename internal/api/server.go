// Package api is the request orchestrator: it extracts parameters from the
// transport, obtains source bytes, drives the transformation pipeline and
// maps its errors onto HTTP responses.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tinrab/image-service/internal/domain"
	"github.com/tinrab/image-service/internal/id"
	"github.com/tinrab/image-service/internal/pipeline"
	"github.com/tinrab/image-service/internal/queue"
	"github.com/tinrab/image-service/internal/store"
)

type Server struct {
	logger         *log.Logger
	fetcher        imageFetcher
	queueClient    queueEnqueuer
	jobStore       store.JobStore
	storage        ObjectStorage
	rateLimiter    RateLimiter
	userIDHeader   string
	presignTTL     time.Duration
	maxUploadBytes int64
	metrics        *metrics
	tracer         trace.Tracer
	mux            *http.ServeMux
}

type imageFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

type queueEnqueuer interface {
	EnqueueTransformImage(ctx context.Context, payload queue.TransformImagePayload) (*asynq.TaskInfo, error)
}

// ObjectStorage is the slice of the storage client the API needs for
// presigned upload sources. A nil value disables them.
type ObjectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

type Options struct {
	PresignTTL     time.Duration
	MaxUploadBytes int64
	RateLimiter    RateLimiter
	UserIDHeader   string
}

func NewServer(logger *log.Logger, fetcher imageFetcher, queueClient queueEnqueuer, jobStore store.JobStore, storage ObjectStorage, opts Options) *Server {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.UserIDHeader == "" {
		opts.UserIDHeader = "X-User-ID"
	}
	if storage == nil {
		storage = unavailableObjectStorage{}
	}

	s := &Server{
		logger:         logger,
		fetcher:        fetcher,
		queueClient:    queueClient,
		jobStore:       jobStore,
		storage:        storage,
		rateLimiter:    opts.RateLimiter,
		userIDHeader:   opts.UserIDHeader,
		presignTTL:     opts.PresignTTL,
		maxUploadBytes: opts.MaxUploadBytes,
		metrics:        newMetrics(),
		tracer:         otel.Tracer("imagesvc/api"),
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /url", s.handleTransformFromURL)
	s.mux.HandleFunc("POST /upload", s.handleTransformFromUpload)
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("POST /v1/jobs/", s.handleStartJob)
	s.mux.HandleFunc("GET /v1/jobs/", s.handleGetJob)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTransformFromURL(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	rawURL := strings.TrimSpace(query.Get("url"))
	if rawURL == "" {
		s.writeTransformError(w, "url", fmt.Errorf("%w: url is required", domain.ErrInvalidParameter))
		return
	}

	params, err := parseTransformQuery(query)
	if err != nil {
		s.writeTransformError(w, "url", err)
		return
	}

	data, err := s.fetcher.Fetch(r.Context(), rawURL)
	if err != nil {
		s.writeTransformError(w, "url", err)
		return
	}

	encoded, err := transformAndEncode(data, params, rawURL)
	if err != nil {
		s.writeTransformError(w, "url", err)
		return
	}

	s.metrics.transformsTotal.WithLabelValues("url", "success").Inc()
	writeImage(w, encoded)
}

func (s *Server) handleTransformFromUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	data, filename, params, err := parseTransformMultipart(r)
	if err != nil {
		s.writeTransformError(w, "upload", err)
		return
	}

	encoded, err := transformAndEncode(data, params, filename)
	if err != nil {
		s.writeTransformError(w, "upload", err)
		return
	}

	s.metrics.transformsTotal.WithLabelValues("upload", "success").Inc()
	writeImage(w, encoded)
}

// transformAndEncode runs the synchronous path: decode, apply the pipeline,
// then encode with the requested format or one inferred from the source name.
func transformAndEncode(data []byte, params domain.TransformParams, sourceName string) (pipeline.Encoded, error) {
	img, err := pipeline.Decode(data)
	if err != nil {
		return pipeline.Encoded{}, err
	}

	img, err = pipeline.Apply(img, params)
	if err != nil {
		return pipeline.Encoded{}, err
	}

	token := strings.TrimSpace(params.OutputFormat)
	if token == "" {
		token = inferFormat(sourceName)
	}

	return pipeline.Encode(img, token, params.Quality)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := validateParams(req.Params); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	jobID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	uploadState := "not_required"
	presignedPutURL := ""
	objectKey := ""

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = fmt.Sprintf("uploads/%s/source", jobID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("generate presigned url failed for job %s: %v", jobID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	job := domain.Job{
		ID:         jobID,
		Status:     domain.JobStatusCreated,
		SourceType: sourceType,
		SourceURL:  strings.TrimSpace(req.SourceURL),
		WebhookURL: req.WebhookURL,
		ObjectKey:  objectKey,
		Params:     req.Params,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Printf("create job failed for job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create job"})
		return
	}

	// URL sources need no upload step, so they go straight onto the queue.
	status := job.Status
	if sourceType == domain.SourceTypeURL {
		if err := s.enqueueJob(r.Context(), job); err != nil {
			s.logger.Printf("enqueue failed for job %s: %v", job.ID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue job"})
			return
		}
		status = domain.JobStatusQueued
	}

	response := map[string]any{
		"job_id":     job.ID,
		"status":     status,
		"status_url": fmt.Sprintf("/v1/jobs/%s", job.ID),
	}
	if sourceType == domain.SourceTypeS3Presigned {
		response["upload"] = map[string]string{
			"object_key":          job.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		}
		response["start_url"] = fmt.Sprintf("/v1/jobs/%s/start", job.ID)
	}

	writeJSON(w, http.StatusAccepted, response)
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := extractJobIDFromStartPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed for job %s: %v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	if job.SourceType == domain.SourceTypeS3Presigned {
		exists, err := s.storage.ObjectExists(r.Context(), job.ObjectKey)
		if err != nil {
			writeJSON(w, http.StatusConflict, map[string]string{"error": fmt.Sprintf("source object check failed: %v", err)})
			return
		}
		if !exists {
			writeJSON(w, http.StatusConflict, map[string]string{"error": fmt.Sprintf("source object is missing: %s", job.ObjectKey)})
			return
		}
	}

	if err := s.enqueueJob(r.Context(), job); err != nil {
		s.logger.Printf("enqueue failed for job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue job"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": domain.JobStatusQueued,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := extractJobIDFromPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed for job %s: %v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	response := map[string]any{
		"job_id":      job.ID,
		"status":      job.Status,
		"source_type": job.SourceType,
		"created_at":  job.CreatedAt,
		"updated_at":  job.UpdatedAt,
	}
	if job.ResultKey != "" {
		response["result"] = map[string]string{
			"object_key": job.ResultKey,
			"mime_type":  job.ResultMIME,
		}
	}
	if job.Error != "" {
		response["error"] = job.Error
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) enqueueJob(ctx context.Context, job domain.Job) error {
	payload := queue.TransformImagePayload{
		JobID:       job.ID,
		SourceType:  job.SourceType,
		SourceURL:   job.SourceURL,
		ObjectKey:   job.ObjectKey,
		WebhookURL:  job.WebhookURL,
		Params:      job.Params,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueTransformImage(ctx, payload)
	if err != nil {
		return err
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(ctx, job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Printf("update status failed for job %s: %v", job.ID, err)
	}
	return nil
}

// validateParams surfaces filter and format errors at submission time instead
// of letting the job fail later on the worker.
func validateParams(params domain.TransformParams) error {
	if params.HasFilter() {
		if _, err := pipeline.ParseFilter(params.Filter); err != nil {
			return err
		}
	}
	if strings.TrimSpace(params.OutputFormat) != "" {
		if _, err := pipeline.NormalizeFormat(params.OutputFormat); err != nil {
			return err
		}
	}
	return nil
}

// writeTransformError maps pipeline error classes onto status codes:
// validation 400, undecodable source 422, upstream fetch 502, the rest 500.
func (s *Server) writeTransformError(w http.ResponseWriter, source string, err error) {
	var status int
	switch {
	case domain.IsValidationError(err):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrImageDecode):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrImageFetch):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	s.metrics.transformsTotal.WithLabelValues(source, "error").Inc()
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeImage(w http.ResponseWriter, encoded pipeline.Encoded) {
	w.Header().Set("Content-Type", encoded.MIME)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encoded.Bytes)
}

func extractJobIDFromStartPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/jobs/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "start" {
		return "", errors.New("expected path format /v1/jobs/{id}/start")
	}
	return parts[0], nil
}

func extractJobIDFromPath(path string) (string, error) {
	trimmed := strings.Trim(strings.TrimPrefix(path, "/v1/jobs/"), "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", errors.New("expected path format /v1/jobs/{id}")
	}
	return trimmed, nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
