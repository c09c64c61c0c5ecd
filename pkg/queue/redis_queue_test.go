package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *RedisJobQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewRedisJobQueue(RedisQueueConfig{
		Addr:       mr.Addr(),
		Stream:     "doc_jobs_test",
		Group:      "workers",
		Consumer:   "test-consumer",
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRedisJobQueue: %v", err)
	}
	return q
}

func TestEnqueueAndGetJob(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected job ID")
	}
	if job.Status != StatusQueued {
		t.Fatalf("status = %q, want %q", job.Status, StatusQueued)
	}

	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if !ok {
		t.Fatal("expected job to exist")
	}
	if got.DocumentID != "doc-1" {
		t.Fatalf("documentId = %q, want doc-1", got.DocumentID)
	}
	if got.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0", got.Attempts)
	}
}

func TestEnqueueRejectsEmptyDocumentID(t *testing.T) {
	q := newTestQueue(t)
	if _, err := q.Enqueue(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty document ID")
	}
}

func TestGetJobMissing(t *testing.T) {
	q := newTestQueue(t)
	_, ok, err := q.GetJob(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if ok {
		t.Fatal("expected job to be missing")
	}
}

func TestHandleMessageSuccessAcks(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	q.ensureGroup(ctx)

	job, err := q.Enqueue(ctx, "doc-ok")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: "test-consumer-0",
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    time.Second,
	}).Result()
	if err != nil {
		t.Fatalf("XReadGroup: %v", err)
	}
	if len(streams) != 1 || len(streams[0].Messages) != 1 {
		t.Fatalf("expected one pending message, got %v", streams)
	}

	var handled []string
	q.handleMessage(ctx, streams[0].Messages[0], func(_ context.Context, j JobStatus) error {
		handled = append(handled, j.DocumentID)
		return nil
	})
	if len(handled) != 1 || handled[0] != "doc-ok" {
		t.Fatalf("handled = %v, want [doc-ok]", handled)
	}

	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("GetJob: ok=%v err=%v", ok, err)
	}
	if got.Status != StatusDone {
		t.Fatalf("status = %q, want %q", got.Status, StatusDone)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("XPending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("pending count = %d, want 0", pending.Count)
	}
}

func TestHandleMessageRetriesThenFails(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	q.ensureGroup(ctx)

	job, err := q.Enqueue(ctx, "doc-bad")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	failing := func(_ context.Context, _ JobStatus) error {
		return context.DeadlineExceeded
	}

	// Each pass reads the live message and fails it. With MaxRetries=2
	// the first failure requeues, the second marks the job failed.
	for attempt := 1; attempt <= 2; attempt++ {
		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: "test-consumer-0",
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    time.Second,
		}).Result()
		if err != nil {
			t.Fatalf("XReadGroup attempt %d: %v", attempt, err)
		}
		if len(streams) != 1 || len(streams[0].Messages) != 1 {
			t.Fatalf("attempt %d: expected one message, got %v", attempt, streams)
		}
		q.handleMessage(ctx, streams[0].Messages[0], failing)
	}

	got, ok, err := q.GetJob(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("GetJob: ok=%v err=%v", ok, err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status = %q, want %q", got.Status, StatusFailed)
	}
	if got.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", got.Attempts)
	}
	if got.ErrorMessage == "" {
		t.Fatal("expected error message on failed job")
	}

	pending, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		t.Fatalf("XPending: %v", err)
	}
	if pending.Count != 0 {
		t.Fatalf("pending count = %d, want 0", pending.Count)
	}
}
