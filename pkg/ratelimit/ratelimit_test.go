package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketRefill(t *testing.T) {
	clock := time.Unix(0, 0)
	tb := NewTokenBucket(2, 4)
	tb.now = func() time.Time { return clock }
	tb.last = clock

	if !tb.Allow() || !tb.Allow() {
		t.Fatal("burst of capacity should be allowed")
	}
	if tb.Allow() {
		t.Fatal("bucket should be empty")
	}
	clock = clock.Add(250 * time.Millisecond)
	if !tb.Allow() {
		t.Fatal("one token should refill after 1/rate")
	}
	clock = clock.Add(10 * time.Second)
	if got := tb.Remaining(); got != 2 {
		t.Fatalf("remaining=%d want capacity 2", got)
	}
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(1, 50)
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := tb.Wait(ctx); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("waits returned too fast: %v", elapsed)
	}

	slow := NewTokenBucket(1, 0.1)
	slow.Allow()
	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := slow.Wait(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestTokenBucketUnlimited(t *testing.T) {
	tb := NewTokenBucket(1, 0)
	for i := 0; i < 100; i++ {
		if !tb.Allow() {
			t.Fatal("rate<=0 should never limit")
		}
	}
}
