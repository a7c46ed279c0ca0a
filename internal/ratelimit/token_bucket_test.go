package ratelimit

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestNewRedisTokenBucketValidatesArguments(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	if _, err := NewRedisTokenBucket(nil, 10, time.Minute, ""); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisTokenBucket(client, 0, time.Minute, ""); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := NewRedisTokenBucket(client, 10, 0, ""); err == nil {
		t.Fatal("expected error for zero window")
	}

	limiter, err := NewRedisTokenBucket(client, 10, time.Minute, "")
	if err != nil {
		t.Fatalf("expected valid limiter, got %v", err)
	}
	if limiter.capacity != 10 {
		t.Fatalf("expected capacity 10, got %d", limiter.capacity)
	}
	if limiter.keyPrefix == "" {
		t.Fatal("expected a default key prefix")
	}
}
