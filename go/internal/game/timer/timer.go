package timer

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/drawguess/go/internal/game/events"
	"github.com/mcdev12/drawguess/go/internal/game/runtime"
	"github.com/rs/zerolog/log"
)

// Broadcaster delivers timer events to every connection of a room
type Broadcaster interface {
	BroadcastToRoom(roomID string, event *events.GameEvent)
}

// CompletionFunc is invoked once when a timer counts down to zero. generation
// identifies the timer so the receiver can ignore completions of superseded timers.
type CompletionFunc func(roomID string, phase runtime.Phase, generation uint64)

// RoundTimer runs at most one countdown per room. It broadcasts the remaining
// seconds once per tick and signals completion; it does not know what
// completion means for the game.
type RoundTimer struct {
	clock        clockwork.Clock
	broadcaster  Broadcaster
	tickInterval time.Duration
	onComplete   CompletionFunc

	active     map[string]*roundTimer
	generation uint64
	mu         sync.Mutex
}

type roundTimer struct {
	roomID     string
	phase      runtime.Phase
	startedAt  time.Time
	duration   time.Duration
	generation uint64
	ticker     clockwork.Ticker
	done       chan struct{}
}

// New creates a timer service. In production pass clockwork.NewRealClock(),
// whose readings carry the monotonic clock; in tests a fake clock.
func New(clock clockwork.Clock, broadcaster Broadcaster) *RoundTimer {
	return &RoundTimer{
		clock:        clock,
		broadcaster:  broadcaster,
		tickInterval: time.Second,
		active:       make(map[string]*roundTimer),
	}
}

// OnComplete registers the completion callback.
func (t *RoundTimer) OnComplete(fn CompletionFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onComplete = fn
}

// Start cancels any timer running for the room and starts a new countdown of
// durationSeconds. It returns the generation of the new timer.
func (t *RoundTimer) Start(roomID string, phase runtime.Phase, durationSeconds int) uint64 {
	if durationSeconds < 1 {
		log.Warn().
			Str("room_id", roomID).
			Int("duration_sec", durationSeconds).
			Msg("timer duration below one second, using one second")
		durationSeconds = 1
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.active[roomID]; ok {
		stopTimer(existing)
		log.Debug().
			Str("room_id", roomID).
			Uint64("generation", existing.generation).
			Msg("replaced existing round timer")
	}

	t.generation++
	rt := &roundTimer{
		roomID:     roomID,
		phase:      phase,
		startedAt:  t.clock.Now(),
		duration:   time.Duration(durationSeconds) * time.Second,
		generation: t.generation,
		ticker:     t.clock.NewTicker(t.tickInterval),
		done:       make(chan struct{}),
	}
	t.active[roomID] = rt

	go t.run(rt)

	log.Debug().
		Str("room_id", roomID).
		Str("phase", string(phase)).
		Int("duration_sec", durationSeconds).
		Uint64("generation", rt.generation).
		Msg("round timer started")

	return rt.generation
}

// Stop cancels the room's timer and tells clients it stopped. It is a no-op
// when no timer is running and reports whether one was.
func (t *RoundTimer) Stop(roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rt, ok := t.active[roomID]
	if !ok {
		return false
	}
	stopTimer(rt)
	delete(t.active, roomID)

	t.broadcast(roomID, events.EventTypeTimerStopped, events.TimerStoppedPayload{Phase: string(rt.phase)})
	log.Debug().Str("room_id", roomID).Uint64("generation", rt.generation).Msg("round timer stopped")
	return true
}

// Remaining returns the rounded seconds left on the room's timer.
func (t *RoundTimer) Remaining(roomID string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rt, ok := t.active[roomID]
	if !ok {
		return 0, false
	}
	return t.remainingLocked(rt), true
}

// running reports whether a timer is running for the room.
func (t *RoundTimer) running(roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[roomID]
	return ok
}

// StopAll cancels every timer without notifying clients.
func (t *RoundTimer) StopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for roomID, rt := range t.active {
		stopTimer(rt)
		delete(t.active, roomID)
	}
}

// stopTimer releases the ticker and ends the timer goroutine. Callers hold t.mu.
func stopTimer(rt *roundTimer) {
	rt.ticker.Stop()
	close(rt.done)
}

func (t *RoundTimer) run(rt *roundTimer) {
	for {
		select {
		case <-rt.done:
			return
		case <-rt.ticker.Chan():
			completed, alive := t.tick(rt)
			if !alive {
				return
			}
			if completed {
				t.complete(rt)
				return
			}
		}
	}
}

// tick publishes the countdown. The active check and the enqueue happen under
// one lock, so a superseded timer cannot emit after its successor started.
func (t *RoundTimer) tick(rt *roundTimer) (completed, alive bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active[rt.roomID] != rt {
		return false, false
	}

	remaining := t.remainingLocked(rt)
	t.broadcast(rt.roomID, events.EventTypeTimerUpdate, events.TimerUpdatePayload{
		Phase:            string(rt.phase),
		RemainingSeconds: remaining,
	})
	if remaining > 0 {
		return false, true
	}

	rt.ticker.Stop()
	delete(t.active, rt.roomID)
	t.broadcast(rt.roomID, events.EventTypeTimerCompleted, events.TimerCompletedPayload{Phase: string(rt.phase)})
	return true, true
}

func (t *RoundTimer) remainingLocked(rt *roundTimer) int {
	remaining := rt.duration - t.clock.Since(rt.startedAt)
	if remaining < 0 {
		remaining = 0
	}
	return int(math.Round(remaining.Seconds()))
}

// complete runs the callback outside the timer lock. A panic is contained here
// so one room cannot take down the timers of other rooms.
func (t *RoundTimer) complete(rt *roundTimer) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("room_id", rt.roomID).
				Str("phase", string(rt.phase)).
				Msg("round timer completion callback panicked")
		}
	}()

	t.mu.Lock()
	fn := t.onComplete
	t.mu.Unlock()

	log.Info().
		Str("room_id", rt.roomID).
		Str("phase", string(rt.phase)).
		Uint64("generation", rt.generation).
		Msg("round timer completed")

	if fn != nil {
		fn(rt.roomID, rt.phase, rt.generation)
	}
}

func (t *RoundTimer) broadcast(roomID string, eventType events.EventType, payload interface{}) {
	event, err := events.New(roomID, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build timer event")
		return
	}
	t.broadcaster.BroadcastToRoom(roomID, event)
}
