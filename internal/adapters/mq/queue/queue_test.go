package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/liftsense/internal/domain/model"
)

func newJob(id string) model.Job {
	return model.NewJob(id, "session", []byte(id), nil)
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Capacity(); c != 2 {
		t.Errorf("expected capacity 2, got %d", c)
	}

	if !q.Enqueue(ctx, newJob("job1")) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	job := <-q.Dequeue(dctx)
	if job.ID != "job1" {
		t.Errorf("expected job1, got %v", job.ID)
	}
	if string(job.Image) != "job1" {
		t.Errorf("expected image to travel with the job, got %q", job.Image)
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2), WithBufferSize(1))
	ctx := context.Background()

	if !q.Enqueue(ctx, newJob("job1")) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, newJob("job2")) {
		t.Error("expected enqueue to succeed")
	}

	// full queue rejects instead of blocking
	if q.Enqueue(ctx, newJob("job3")) {
		t.Error("expected enqueue to fail when full")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConsumersShareOneChannel(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	defer func() { _ = q.Close() }()
	ctx := context.Background()

	busy := q.Dequeue(ctx)
	idle := q.Dequeue(ctx)
	if busy != idle {
		t.Fatal("expected every consumer to receive from the same channel")
	}

	if !q.Enqueue(ctx, newJob("job1")) || !q.Enqueue(ctx, newJob("job2")) {
		t.Fatal("expected enqueue to succeed")
	}

	// a consumer that takes one job and stops reading holds nothing back
	first := <-busy
	q.Ack()
	select {
	case second := <-idle:
		if second.ID == first.ID {
			t.Errorf("expected a different job, got %s twice", first.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the idle consumer to receive the next job")
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	defer func() { _ = q.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	numGoroutines := 10
	numJobs := 100

	var producers sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		producers.Add(1)
		go func(id int) {
			defer producers.Done()
			for j := 0; j < numJobs; j++ {
				job := newJob(fmt.Sprintf("job%d_%d", id, j))
				for !q.Enqueue(ctx, job) {
					time.Sleep(time.Millisecond)
				}
			}
		}(i)
	}

	consumed := make(chan string, numGoroutines*numJobs)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			for job := range q.Dequeue(ctx) {
				consumed <- job.ID
			}
		}()
	}

	producers.Wait()

	seen := make(map[string]struct{}, numGoroutines*numJobs)
	timeout := time.After(5 * time.Second)
	for len(seen) < numGoroutines*numJobs {
		select {
		case id := <-consumed:
			seen[id] = struct{}{}
		case <-timeout:
			t.Fatalf("expected %d jobs, consumed %d", numGoroutines*numJobs, len(seen))
		}
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, newJob("job1")) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, newJob("job2")) {
		t.Error("expected enqueue to succeed")
	}

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}

	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}

	if q.Enqueue(ctx, newJob("job3")) {
		t.Error("expected enqueue to fail after closing")
	}

	// queued jobs drain, then the channel closes
	drained := 0
	timeout := time.After(time.Second)
	jobs := q.Dequeue(ctx)
	for {
		select {
		case _, ok := <-jobs:
			if !ok {
				if drained != 2 {
					t.Errorf("expected 2 drained jobs, got %d", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained++
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}
