package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWaitPerHostIsolated(t *testing.T) {
	h := NewHostLimiter(0.001, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := h.Wait(ctx, "imap.example.com"); err != nil {
		t.Fatalf("first wait on host A: %v", err)
	}
	// A second, unrelated host must not be throttled by host A's bucket.
	if err := h.Wait(ctx, "imap.other.com"); err != nil {
		t.Fatalf("first wait on host B: %v", err)
	}
}

func TestAllowConsumesToken(t *testing.T) {
	h := NewHostLimiter(0.001, 1)
	if !h.Allow("imap.example.com") {
		t.Fatal("expected first Allow to succeed (burst=1)")
	}
	if h.Allow("imap.example.com") {
		t.Fatal("expected second immediate Allow to be denied")
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	h := NewHostLimiter(0.001, 1)
	h.Allow("imap.example.com") // drain the only token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := h.Wait(ctx, "imap.example.com"); err == nil {
		t.Fatal("expected Wait to fail once context deadline is exceeded")
	}
}
