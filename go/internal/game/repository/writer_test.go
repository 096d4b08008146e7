package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failure struct {
	roomID    string
	operation string
	err       error
}

type failureLog struct {
	mu   sync.Mutex
	list []failure
}

func (f *failureLog) record(roomID, operation string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.list = append(f.list, failure{roomID, operation, err})
}

func (f *failureLog) all() []failure {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]failure(nil), f.list...)
}

func testWriterConfig() WriterConfig {
	cfg := DefaultWriterConfig()
	cfg.RetryDelay = 0
	cfg.MaxRetries = 2
	return cfg
}

func startWriter(t *testing.T, cfg WriterConfig) (*Writer, *clockwork.FakeClock, *failureLog) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	w := NewWriter(cfg, WithWriterClock(clock))
	failures := &failureLog{}
	w.OnFailure(failures.record)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)
	t.Cleanup(cancel)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1), "writer ticker not started")
	return w, clock, failures
}

// flush waits until every write enqueued so far has been attempted.
func flush(t *testing.T, w *Writer) {
	t.Helper()
	done := make(chan struct{})
	w.Enqueue("flush", "flush", func(context.Context) error {
		close(done)
		return nil
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not reach the flush marker")
	}
}

func TestWriterRunsInOrder(t *testing.T) {
	w, _, failures := startWriter(t, testWriterConfig())

	var mu sync.Mutex
	var got []string
	for _, op := range []string{"a", "b", "c"} {
		op := op
		w.Enqueue("room-1", op, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, op)
			return nil
		})
	}
	flush(t, w)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Empty(t, failures.all())
}

func TestWriterRetriesTransientFailure(t *testing.T) {
	w, _, failures := startWriter(t, testWriterConfig())

	var calls int32
	w.Enqueue("room-1", "update_room_status", func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	flush(t, w)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Empty(t, failures.all())
	assert.Equal(t, 0, w.BacklogLen())
}

func TestWriterReportsExhaustedWriteAndRetriesAfterSuccess(t *testing.T) {
	w, _, failures := startWriter(t, testWriterConfig())

	var healthy atomic.Bool
	var calls int32
	w.Enqueue("room-1", "record_final_scores", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		if !healthy.Load() {
			return errors.New("database down")
		}
		return nil
	})
	require.Eventually(t, func() bool { return len(failures.all()) == 1 }, 2*time.Second, 5*time.Millisecond)

	got := failures.all()
	assert.Equal(t, "room-1", got[0].roomID)
	assert.Equal(t, "record_final_scores", got[0].operation)
	assert.EqualError(t, got[0].err, "database down")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, w.BacklogLen())

	healthy.Store(true)
	w.Enqueue("room-1", "record_chat_message", func(context.Context) error { return nil })

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return w.BacklogLen() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, failures.all(), 1, "backlog retries are not reported again")
}

func TestWriterRetriesBacklogOnInterval(t *testing.T) {
	cfg := testWriterConfig()
	w, clock, _ := startWriter(t, cfg)

	var healthy atomic.Bool
	var done atomic.Bool
	w.Enqueue("room-1", "record_chat_message", func(context.Context) error {
		if !healthy.Load() {
			return errors.New("database down")
		}
		done.Store(true)
		return nil
	})
	require.Eventually(t, func() bool { return w.BacklogLen() == 1 }, 2*time.Second, 5*time.Millisecond)

	healthy.Store(true)
	clock.Advance(cfg.RetryInterval)

	require.Eventually(t, done.Load, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return w.BacklogLen() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWriterLatestStatusWins(t *testing.T) {
	w, _, failures := startWriter(t, testWriterConfig())

	var staleRuns int32
	w.Enqueue("room-1", "update_room_status", func(context.Context) error {
		atomic.AddInt32(&staleRuns, 1)
		return errors.New("database down")
	})
	require.Eventually(t, func() bool { return len(failures.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, w.BacklogLen())

	w.Enqueue("room-1", "update_room_status", func(context.Context) error { return nil })
	flush(t, w)

	assert.Equal(t, 0, w.BacklogLen())
	assert.Equal(t, int32(3), atomic.LoadInt32(&staleRuns), "the superseded status write is not retried")
	assert.Len(t, failures.all(), 1)
}

func TestWriterKeepsOtherRoomsBacklog(t *testing.T) {
	w, _, _ := startWriter(t, testWriterConfig())

	w.Enqueue("room-1", "update_room_status", func(context.Context) error { return errors.New("down") })
	flush(t, w)
	w.Enqueue("room-2", "update_room_status", func(context.Context) error { return nil })
	flush(t, w)

	assert.Equal(t, 1, w.BacklogLen())
}

func TestWriterContainsPanics(t *testing.T) {
	w, _, failures := startWriter(t, testWriterConfig())

	w.Enqueue("room-1", "record_chat_message", func(context.Context) error {
		panic("nil map")
	})
	flush(t, w)

	got := failures.all()
	require.Len(t, got, 1)
	assert.Contains(t, got[0].err.Error(), "write panicked")
}

func TestWriterCloseDrainsQueue(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := NewWriter(testWriterConfig(), WithWriterClock(clock))
	go w.Start(context.Background())

	var ran atomic.Bool
	w.Enqueue("room-1", "update_room_status", func(context.Context) error {
		ran.Store(true)
		return nil
	})
	w.Close()
	assert.True(t, ran.Load())

	var late atomic.Bool
	w.Enqueue("room-1", "update_room_status", func(context.Context) error {
		late.Store(true)
		return nil
	})
	w.Close()
	assert.False(t, late.Load())
}

func TestWriterQueueFullDefersToBacklog(t *testing.T) {
	cfg := testWriterConfig()
	cfg.QueueSize = 1
	w := NewWriter(cfg, WithWriterClock(clockwork.NewFakeClock()))

	// Not started: the first write fills the queue, the second is deferred.
	w.Enqueue("room-1", "a", func(context.Context) error { return nil })
	w.Enqueue("room-1", "b", func(context.Context) error { return nil })
	assert.Equal(t, 1, w.BacklogLen())

	go w.Start(context.Background())
	flushed := make(chan struct{})
	w.Enqueue("room-1", "c", func(context.Context) error {
		close(flushed)
		return nil
	})
	select {
	case <-flushed:
	case <-time.After(2 * time.Second):
		t.Fatal("writer stalled")
	}
	assert.Eventually(t, func() bool { return w.BacklogLen() == 0 }, 2*time.Second, 5*time.Millisecond)
	w.Close()
}
