package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.API.Addr != ":3000" {
		t.Fatalf("expected default api addr :3000, got %s", cfg.API.Addr)
	}
	if cfg.Fetch.MaxBytes != 10<<20 {
		t.Fatalf("expected 10MiB fetch limit, got %d", cfg.Fetch.MaxBytes)
	}
	if cfg.Storage.Bucket != "imagesvc-jobs" {
		t.Fatalf("expected default bucket, got %s", cfg.Storage.Bucket)
	}
	if cfg.RateLimit.Capacity != 60 || cfg.RateLimit.Window != time.Minute {
		t.Fatalf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Worker.Concurrency < 2 {
		t.Fatalf("expected worker concurrency of at least 2, got %d", cfg.Worker.Concurrency)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("IMAGESVC_API_ADDR", ":8080")
	t.Setenv("IMAGESVC_FETCH_TIMEOUT", "30s")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("RATE_LIMIT_CAPACITY", "120")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()

	if cfg.API.Addr != ":8080" {
		t.Fatalf("expected :8080, got %s", cfg.API.Addr)
	}
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Fatalf("expected 30s fetch timeout, got %s", cfg.Fetch.Timeout)
	}
	if cfg.Queue.RedisAddr != "redis.internal:6379" {
		t.Fatalf("expected redis.internal:6379, got %s", cfg.Queue.RedisAddr)
	}
	if cfg.RateLimit.Capacity != 120 {
		t.Fatalf("expected capacity 120, got %d", cfg.RateLimit.Capacity)
	}
	if !cfg.Storage.UseSSL {
		t.Fatal("expected MINIO_USE_SSL=true to be honored")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "plenty")
	t.Setenv("IMAGESVC_FETCH_TIMEOUT", "soon")

	cfg := Load()

	if cfg.RateLimit.Capacity != 60 {
		t.Fatalf("expected fallback capacity 60, got %d", cfg.RateLimit.Capacity)
	}
	if cfg.Fetch.Timeout != 10*time.Second {
		t.Fatalf("expected fallback timeout 10s, got %s", cfg.Fetch.Timeout)
	}
}
