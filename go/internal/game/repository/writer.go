package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// WriterConfig tunes the background writer
type WriterConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	RetryInterval time.Duration `yaml:"retry_interval"` // how often the backlog is retried when idle
	OpTimeout     time.Duration `yaml:"op_timeout"`
	MaxBacklog    int           `yaml:"max_backlog"`
	// LatestWins names operations where a newer success makes older failed
	// writes of the same room obsolete.
	LatestWins []string `yaml:"latest_wins"`
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		QueueSize:     1024,
		MaxRetries:    3,
		RetryDelay:    200 * time.Millisecond,
		RetryInterval: 30 * time.Second,
		OpTimeout:     5 * time.Second,
		MaxBacklog:    10000,
		LatestWins:    []string{"update_room_status"},
	}
}

// FailureFunc is told about a write that exhausted its retries.
type FailureFunc func(roomID, operation string, err error)

type job struct {
	roomID    string
	operation string
	fn        func(ctx context.Context) error
	seq       uint64
}

// Writer runs durable writes on one goroutine, in submission order, so the
// game path never waits on the database. Writes that keep failing are kept in
// a backlog and retried after the next success or on an interval.
type Writer struct {
	config    WriterConfig
	clock     clockwork.Clock
	queue     chan job
	onFailure FailureFunc

	latestWins map[string]bool

	mu       sync.Mutex
	seq      uint64
	backlog  []job
	closed   bool
	stopChan chan struct{}
	done     chan struct{}
}

// WriterOption customizes a Writer.
type WriterOption func(*Writer)

// WithWriterClock replaces the real clock.
func WithWriterClock(clock clockwork.Clock) WriterOption {
	return func(w *Writer) { w.clock = clock }
}

func NewWriter(cfg WriterConfig, opts ...WriterOption) *Writer {
	w := &Writer{
		config:     cfg,
		clock:      clockwork.NewRealClock(),
		queue:      make(chan job, cfg.QueueSize),
		latestWins: make(map[string]bool, len(cfg.LatestWins)),
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	if w.config.RetryInterval <= 0 {
		w.config.RetryInterval = DefaultWriterConfig().RetryInterval
	}
	for _, op := range cfg.LatestWins {
		w.latestWins[op] = true
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnFailure installs the callback for writes that exhausted their retries.
func (w *Writer) OnFailure(fn FailureFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onFailure = fn
}

// Enqueue submits a write. It never blocks: with a full queue the write goes
// straight to the backlog.
func (w *Writer) Enqueue(roomID, operation string, fn func(ctx context.Context) error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		log.Warn().Str("room_id", roomID).Str("operation", operation).Msg("writer closed, dropping write")
		return
	}
	w.seq++
	j := job{roomID: roomID, operation: operation, fn: fn, seq: w.seq}

	select {
	case w.queue <- j:
		w.mu.Unlock()
	default:
		w.addBacklogLocked(j)
		w.mu.Unlock()
		log.Warn().Str("room_id", roomID).Str("operation", operation).Msg("write queue full, deferring write")
	}
}

// Start processes writes until ctx is cancelled or Close is called.
func (w *Writer) Start(ctx context.Context) {
	defer close(w.done)

	ticker := w.clock.NewTicker(w.config.RetryInterval)
	defer ticker.Stop()

	log.Info().Int("queue_size", w.config.QueueSize).Msg("persistence writer started")

	for {
		select {
		case <-ctx.Done():
			w.drain(context.Background())
			return
		case <-w.stopChan:
			w.drain(ctx)
			return
		case j := <-w.queue:
			if w.execute(ctx, j, true) {
				w.retryBacklog(ctx)
			}
		case <-ticker.Chan():
			w.retryBacklog(ctx)
		}
	}
}

// Close stops accepting writes and waits for queued ones to be attempted once.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stopChan)
	<-w.done
	log.Info().Int("backlog", w.BacklogLen()).Msg("persistence writer stopped")
}

// BacklogLen reports how many failed writes wait for a retry.
func (w *Writer) BacklogLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.backlog)
}

func (w *Writer) drain(ctx context.Context) {
	for {
		select {
		case j := <-w.queue:
			w.execute(ctx, j, true)
		default:
			return
		}
	}
}

// execute runs a job with retries. A failed fresh job is reported and moves
// to the backlog; a failed backlog job stays quiet.
func (w *Writer) execute(ctx context.Context, j job, fresh bool) bool {
	attempts := 1
	if fresh {
		attempts += w.config.MaxRetries
	}

	var lastErr error
retry:
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && w.config.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				break retry
			case <-w.clock.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := w.run(ctx, j); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("room_id", j.roomID).
				Str("operation", j.operation).
				Int("attempt", attempt+1).
				Msg("write failed")
			continue
		}

		w.succeeded(j)
		return true
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}

	if fresh {
		w.mu.Lock()
		w.addBacklogLocked(j)
		onFailure := w.onFailure
		w.mu.Unlock()

		log.Error().
			Err(lastErr).
			Str("room_id", j.roomID).
			Str("operation", j.operation).
			Msg("write exhausted retries, kept for later")
		if onFailure != nil {
			onFailure(j.roomID, j.operation, lastErr)
		}
	}
	return false
}

func (w *Writer) run(ctx context.Context, j job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("write panicked: %v", p)
		}
	}()

	if w.config.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.config.OpTimeout)
		defer cancel()
	}
	if err := j.fn(ctx); err != nil {
		return err
	}
	return nil
}

// succeeded drops backlog entries made obsolete by j.
func (w *Writer) succeeded(j job) {
	if !w.latestWins[j.operation] {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.backlog[:0]
	for _, b := range w.backlog {
		if b.roomID == j.roomID && b.operation == j.operation && b.seq < j.seq {
			continue
		}
		kept = append(kept, b)
	}
	w.backlog = kept
}

func (w *Writer) retryBacklog(ctx context.Context) {
	w.mu.Lock()
	pending := append([]job(nil), w.backlog...)
	w.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	resolved := make(map[uint64]bool, len(pending))
	for i, j := range pending {
		if ctx.Err() != nil {
			break
		}
		if w.obsolete(j, pending[i+1:]) || w.execute(ctx, j, false) {
			resolved[j.seq] = true
		}
	}

	w.mu.Lock()
	kept := make([]job, 0, len(w.backlog))
	for _, b := range w.backlog {
		if !resolved[b.seq] {
			kept = append(kept, b)
		}
	}
	w.backlog = kept
	w.mu.Unlock()

	log.Info().
		Int("retried", len(pending)).
		Int("resolved", len(resolved)).
		Msg("retried write backlog")
}

// obsolete reports whether a later pending write replaces j.
func (w *Writer) obsolete(j job, later []job) bool {
	if !w.latestWins[j.operation] {
		return false
	}
	for _, l := range later {
		if l.roomID == j.roomID && l.operation == j.operation {
			return true
		}
	}
	return false
}

func (w *Writer) addBacklogLocked(j job) {
	if w.config.MaxBacklog > 0 && len(w.backlog) >= w.config.MaxBacklog {
		dropped := w.backlog[0]
		w.backlog = w.backlog[1:]
		log.Error().
			Err(errors.New("backlog full")).
			Str("room_id", dropped.roomID).
			Str("operation", dropped.operation).
			Msg("dropping oldest failed write")
	}
	w.backlog = append(w.backlog, j)
}
