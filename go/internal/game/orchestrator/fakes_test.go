package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/drawguess/go/internal/game/events"
	"github.com/mcdev12/drawguess/go/internal/game/runtime"
	"github.com/mcdev12/drawguess/go/internal/models"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	roomID   string
	playerID string
	event    *events.GameEvent
}

type fakeBroadcaster struct {
	mu       sync.Mutex
	toRoom   []sentEvent
	toPlayer []sentEvent
}

func (b *fakeBroadcaster) BroadcastToRoom(roomID string, event *events.GameEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toRoom = append(b.toRoom, sentEvent{roomID: roomID, event: event})
}

func (b *fakeBroadcaster) BroadcastToPlayer(roomID, playerID string, event *events.GameEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toPlayer = append(b.toPlayer, sentEvent{roomID: roomID, playerID: playerID, event: event})
}

func (b *fakeBroadcaster) roomEvents(eventType events.EventType) []*events.GameEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*events.GameEvent
	for _, s := range b.toRoom {
		if s.event.Type == eventType {
			out = append(out, s.event)
		}
	}
	return out
}

func (b *fakeBroadcaster) playerEvents(playerID string, eventType events.EventType) []*events.GameEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*events.GameEvent
	for _, s := range b.toPlayer {
		if s.playerID == playerID && s.event.Type == eventType {
			out = append(out, s.event)
		}
	}
	return out
}

// roomData concatenates the data of every room-wide event.
func (b *fakeBroadcaster) roomData(exclude ...events.EventType) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sb strings.Builder
outer:
	for _, s := range b.toRoom {
		for _, t := range exclude {
			if s.event.Type == t {
				continue outer
			}
		}
		sb.Write(s.event.Data)
	}
	return sb.String()
}

type timerStart struct {
	roomID  string
	phase   runtime.Phase
	seconds int
	gen     uint64
}

type fakeTimer struct {
	mu     sync.Mutex
	gen    uint64
	starts []timerStart
	stops  []string
	active map[string]bool
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{active: make(map[string]bool)}
}

func (f *fakeTimer) Start(roomID string, phase runtime.Phase, durationSeconds int) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.starts = append(f.starts, timerStart{roomID, phase, durationSeconds, f.gen})
	f.active[roomID] = true
	return f.gen
}

func (f *fakeTimer) Stop(roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.active[roomID]
	delete(f.active, roomID)
	f.stops = append(f.stops, roomID)
	return was
}

func (f *fakeTimer) Remaining(roomID string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active[roomID] {
		return 0, false
	}
	return 10, true
}

func (f *fakeTimer) StopAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = make(map[string]bool)
}

func (f *fakeTimer) last() timerStart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts[len(f.starts)-1]
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) LoadRoom(ctx context.Context, roomID string) (*models.Room, error) {
	args := m.Called(ctx, roomID)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Error(1)
}

func (m *mockStore) UpdateRoomStatus(ctx context.Context, roomID string, status models.RoomStatus) error {
	return m.Called(ctx, roomID, status).Error(0)
}

func (m *mockStore) RecordFinalScores(ctx context.Context, result models.GameResult) error {
	return m.Called(ctx, result).Error(0)
}

func (m *mockStore) RecordChatMessage(ctx context.Context, msg models.ChatMessage) error {
	return m.Called(ctx, msg).Error(0)
}

// syncWriter runs writes inline and reports failures like the async writer does.
type syncWriter struct {
	onFailure func(roomID, operation string, err error)
}

func (w *syncWriter) Enqueue(roomID, operation string, fn func(ctx context.Context) error) {
	if err := fn(context.Background()); err != nil && w.onFailure != nil {
		w.onFailure(roomID, operation, err)
	}
}

type stubSupply struct {
	words []string
	err   error
}

func (s *stubSupply) GetRandomWords(context.Context, []string, int) ([]string, error) {
	return s.words, s.err
}

type harness struct {
	o      *Orchestrator
	store  *mockStore
	timer  *fakeTimer
	bc     *fakeBroadcaster
	clock  *clockwork.FakeClock
	rooms  *runtime.Registry
	supply *stubSupply
}

func roomFixture(totalRounds int, playerIDs ...string) *models.Room {
	room := &models.Room{
		ID:          "room-1",
		CreatorID:   playerIDs[0],
		Status:      models.RoomStatusWaiting,
		TotalRounds: totalRounds,
		Categories:  []string{"animals"},
	}
	for _, id := range playerIDs {
		room.Players = append(room.Players, models.RoomPlayer{ID: id, DisplayName: "Player " + id})
	}
	return room
}

// newHarness wires an orchestrator to fakes. expect registers store
// expectations that take precedence over the permissive defaults.
func newHarness(t *testing.T, room *models.Room, expect ...func(s *mockStore)) *harness {
	t.Helper()
	h := &harness{
		store:  &mockStore{},
		timer:  newFakeTimer(),
		bc:     &fakeBroadcaster{},
		clock:  clockwork.NewFakeClock(),
		rooms:  runtime.NewRegistry(),
		supply: &stubSupply{words: []string{"cat", "dog", "cow", "pig"}},
	}
	for _, fn := range expect {
		fn(h.store)
	}
	h.store.On("LoadRoom", mock.Anything, room.ID).Return(room, nil).Maybe()
	h.store.On("LoadRoom", mock.Anything, mock.Anything).Return(nil, models.ErrRoomNotFound).Maybe()
	h.store.On("UpdateRoomStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	h.store.On("RecordFinalScores", mock.Anything, mock.Anything).Return(nil).Maybe()
	h.store.On("RecordChatMessage", mock.Anything, mock.Anything).Return(nil).Maybe()

	writer := &syncWriter{}
	h.o = New(DefaultConfig(), h.rooms, h.timer, h.bc, h.store, writer, h.supply, WithClock(h.clock))
	writer.onFailure = h.o.PersistenceFailed
	return h
}

func (h *harness) state(t *testing.T) *runtime.ActiveGameState {
	t.Helper()
	s, ok := h.rooms.TryGet("room-1")
	require.True(t, ok, "room has no runtime state")
	return s
}

func (h *harness) snapshot(t *testing.T) PublicState {
	t.Helper()
	snap, err := h.o.Snapshot("room-1")
	require.NoError(t, err)
	return snap
}

// finishRound expires the selection and drawing timers of the current round.
func (h *harness) finishRound(t *testing.T) {
	t.Helper()
	sel := h.timer.last()
	require.Equal(t, runtime.PhaseWaitingForPainterToChooseWord, sel.phase)
	h.o.OnTimerCompleted("room-1", sel.phase, sel.gen)

	draw := h.timer.last()
	require.Equal(t, runtime.PhaseDrawingAndGuessing, draw.phase)
	h.o.OnTimerCompleted("room-1", draw.phase, draw.gen)
}

// nextRound fires the round-over delay and waits for the new round.
func (h *harness) nextRound(t *testing.T, round int) {
	t.Helper()
	h.clock.Advance(DefaultConfig().RoundOverDelay)
	require.Eventually(t, func() bool {
		snap, err := h.o.Snapshot("room-1")
		return err == nil && snap.Round == round
	}, 2*time.Second, 5*time.Millisecond)
}
