package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestRateLimitStore_RecordAndCount(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewRateLimitStore(client, SlidingWindowConfig{KeyPrefix: "reset", TTL: time.Hour})

	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		if err := store.RecordAttempt(ctx, "dana@example.com", now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("RecordAttempt returned error: %v", err)
		}
	}

	count, err := store.CountAttempts(ctx, "dana@example.com", time.Minute, now.Add(3*time.Second))
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 attempts, got %d", count)
	}

	remaining := server.TTL("reset:dana@example.com")
	if remaining <= 0 || remaining > time.Hour {
		t.Fatalf("expected ttl within (0, 1h], got %v", remaining)
	}
}

func TestRateLimitStore_WindowExcludesOldAttempts(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewRateLimitStore(client, SlidingWindowConfig{KeyPrefix: "reset"})

	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.RecordAttempt(ctx, "dana@example.com", now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}
	if err := store.RecordAttempt(ctx, "dana@example.com", now); err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}

	count, err := store.CountAttempts(ctx, "dana@example.com", time.Hour, now)
	if err != nil {
		t.Fatalf("CountAttempts returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected stale attempt excluded, got count %d", count)
	}

	if err := store.TrimWindow(ctx, "dana@example.com", time.Hour, now); err != nil {
		t.Fatalf("TrimWindow returned error: %v", err)
	}

	oldest, ok, err := store.OldestAttempt(ctx, "dana@example.com", time.Hour, now)
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a remaining attempt")
	}
	if !oldest.Equal(now) {
		t.Fatalf("expected oldest %v, got %v", now, oldest)
	}
}

func TestRateLimitStore_OldestAttemptEmpty(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewRateLimitStore(client, SlidingWindowConfig{KeyPrefix: "reset"})

	_, ok, err := store.OldestAttempt(context.Background(), "missing@example.com", time.Hour, time.Now().UTC())
	if err != nil {
		t.Fatalf("OldestAttempt returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected no attempts for unknown identifier")
	}
}
