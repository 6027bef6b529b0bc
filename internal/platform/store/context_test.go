package store

import (
	"context"
	"testing"
)

// TestSessionID_SetAndGet sets a session id and retrieves it
func TestSessionID_SetAndGet(t *testing.T) {
	t.Parallel()

	base := context.Background()
	ctx := WithSession(base, "sess-1")

	id, ok := SessionID(ctx)
	if !ok {
		t.Fatalf("SessionID not found")
	}
	if id != "sess-1" {
		t.Fatalf("SessionID mismatch got=%q want=%q", id, "sess-1")
	}
}

// TestSessionID_EmptyString reports false when empty string is stored
func TestSessionID_EmptyString(t *testing.T) {
	t.Parallel()

	ctx := WithSession(context.Background(), "")

	id, ok := SessionID(ctx)
	if ok {
		t.Fatalf("SessionID ok should be false for empty value")
	}
	if id != "" {
		t.Fatalf("SessionID should be empty got=%q", id)
	}
}

// TestSessionID_NotPresent returns false on base context
func TestSessionID_NotPresent(t *testing.T) {
	t.Parallel()

	id, ok := SessionID(context.Background())
	if ok || id != "" {
		t.Fatalf("SessionID should be absent on base context")
	}
}

// TestSessionID_NoLeak ensures adding value returns a new ctx and base has no value
func TestSessionID_NoLeak(t *testing.T) {
	t.Parallel()

	base := context.Background()
	_ = WithSession(base, "sess-1")

	id, ok := SessionID(base)
	if ok || id != "" {
		t.Fatalf("base context should not have session value")
	}
}

// TestWorkerID_SetAndGet sets a worker id and retrieves it
func TestWorkerID_SetAndGet(t *testing.T) {
	t.Parallel()

	base := context.Background()
	ctx := WithWorker(base, "3")

	id, ok := WorkerID(ctx)
	if !ok {
		t.Fatalf("WorkerID not found")
	}
	if id != "3" {
		t.Fatalf("WorkerID mismatch got=%q want=%q", id, "3")
	}
}

// TestWorkerID_EmptyString reports false when empty string is stored
func TestWorkerID_EmptyString(t *testing.T) {
	t.Parallel()

	ctx := WithWorker(context.Background(), "")

	id, ok := WorkerID(ctx)
	if ok {
		t.Fatalf("WorkerID ok should be false for empty value")
	}
	if id != "" {
		t.Fatalf("WorkerID should be empty got=%q", id)
	}
}

// TestWorkerID_NotPresent returns false on base context
func TestWorkerID_NotPresent(t *testing.T) {
	t.Parallel()

	id, ok := WorkerID(context.Background())
	if ok || id != "" {
		t.Fatalf("WorkerID should be absent on base context")
	}
}

// TestKeys_Isolation ensures session and worker keys do not collide
func TestKeys_Isolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctx = WithSession(ctx, "sess-1")
	ctx = WithWorker(ctx, "3")

	sess, sok := SessionID(ctx)
	wrk, wok := WorkerID(ctx)

	if !sok || sess != "sess-1" {
		t.Fatalf("SessionID mismatch sok=%v sess=%q", sok, sess)
	}
	if !wok || wrk != "3" {
		t.Fatalf("WorkerID mismatch wok=%v wrk=%q", wok, wrk)
	}
}
