package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mcdev12/drawguess/go/internal/game/events"
	"github.com/mcdev12/drawguess/go/internal/game/orchestrator"
	"github.com/mcdev12/drawguess/go/internal/game/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockHandler struct {
	mock.Mock
}

func (m *mockHandler) JoinRoom(ctx context.Context, roomID, playerID, displayName string) error {
	return m.Called(roomID, playerID, displayName).Error(0)
}

func (m *mockHandler) LeaveRoom(ctx context.Context, roomID, playerID string) error {
	return m.Called(roomID, playerID).Error(0)
}

func (m *mockHandler) StartGame(ctx context.Context, roomID, requesterID string) error {
	return m.Called(roomID, requesterID).Error(0)
}

func (m *mockHandler) EndGame(ctx context.Context, roomID, requesterID string) error {
	return m.Called(roomID, requesterID).Error(0)
}

func (m *mockHandler) ChooseWord(ctx context.Context, roomID, word, callerID string) error {
	return m.Called(roomID, word, callerID).Error(0)
}

func (m *mockHandler) HandleGuess(ctx context.Context, roomID, playerID, text string) (orchestrator.GuessResult, error) {
	args := m.Called(roomID, playerID, text)
	return args.Get(0).(orchestrator.GuessResult), args.Error(1)
}

func (m *mockHandler) RelayStroke(ctx context.Context, roomID, playerID string, payload json.RawMessage) error {
	return m.Called(roomID, playerID, string(payload)).Error(0)
}

func (m *mockHandler) SendChat(ctx context.Context, roomID, playerID, text string) error {
	return m.Called(roomID, playerID, text).Error(0)
}

func (m *mockHandler) Undo(ctx context.Context, roomID, playerID string) error {
	return m.Called(roomID, playerID).Error(0)
}

func (m *mockHandler) Redo(ctx context.Context, roomID, playerID string) error {
	return m.Called(roomID, playerID).Error(0)
}

func (m *mockHandler) ClearCanvas(ctx context.Context, roomID, playerID string) error {
	return m.Called(roomID, playerID).Error(0)
}

func newTestManager(t *testing.T) (*ConnectionManager, *presence.Registry) {
	t.Helper()
	registry := presence.NewRegistry()
	cm := NewConnectionManager(DefaultConnectionConfig(), registry)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)
	t.Cleanup(cancel)
	return cm, registry
}

// attach registers an in-process connection with no socket behind it.
func attach(cm *ConnectionManager, roomID string) *Connection {
	conn := cm.newConnection(roomID, nil)
	cm.registerConnection(conn)
	return conn
}

func mustEvent(t *testing.T, roomID string, eventType events.EventType, payload interface{}) *events.GameEvent {
	t.Helper()
	event, err := events.New(roomID, eventType, payload)
	require.NoError(t, err)
	return event
}

func recv(t *testing.T, conn *Connection) *events.GameEvent {
	t.Helper()
	select {
	case data, ok := <-conn.Send:
		require.True(t, ok, "send channel closed")
		var event events.GameEvent
		require.NoError(t, json.Unmarshal(data, &event))
		return &event
	case <-time.After(2 * time.Second):
		t.Fatalf("connection %s received nothing", conn.ID)
		return nil
	}
}

// waitFor reads until an event of the given type arrives.
func waitFor(t *testing.T, conn *Connection, eventType events.EventType) *events.GameEvent {
	t.Helper()
	for {
		event := recv(t, conn)
		if event.Type == eventType {
			return event
		}
	}
}

// drain returns everything delivered to conn before a marker sent through the
// same broadcast loop, so earlier deliveries are complete.
func drain(t *testing.T, cm *ConnectionManager, conn *Connection) []*events.GameEvent {
	t.Helper()
	marker := mustEvent(t, conn.RoomID, events.EventTypeChatMessage, events.ChatMessagePayload{Text: "marker"})
	cm.SendToConnection(conn.RoomID, conn.ID, marker)

	var out []*events.GameEvent
	for {
		event := recv(t, conn)
		if event.ID == marker.ID {
			return out
		}
		out = append(out, event)
	}
}

func types(list []*events.GameEvent) []events.EventType {
	out := make([]events.EventType, 0, len(list))
	for _, e := range list {
		out = append(out, e.Type)
	}
	return out
}

func sendCommand(t *testing.T, conn *Connection, commandType CommandType, data interface{}) {
	t.Helper()
	msg := ClientMessage{Type: commandType}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		msg.Data = raw
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	conn.handleClientMessage(raw)
}

func TestBroadcastToRoom(t *testing.T) {
	cm, _ := newTestManager(t)
	a := attach(cm, "room-1")
	b := attach(cm, "room-1")
	other := attach(cm, "room-2")

	event := mustEvent(t, "room-1", events.EventTypePlayerJoined, events.PlayerJoinedPayload{PlayerID: "p1"})
	cm.BroadcastToRoom("room-1", event)

	assert.Equal(t, event.ID, recv(t, a).ID)
	assert.Equal(t, event.ID, recv(t, b).ID)
	assert.Empty(t, drain(t, cm, other))
}

func TestBroadcastToPlayer(t *testing.T) {
	cm, registry := newTestManager(t)
	tab1 := attach(cm, "room-1")
	tab2 := attach(cm, "room-1")
	someoneElse := attach(cm, "room-1")
	elsewhere := attach(cm, "room-2")

	registry.Bind(tab1.ID, "alice")
	registry.Bind(tab2.ID, "alice")
	registry.Bind(someoneElse.ID, "bob")
	registry.Bind(elsewhere.ID, "alice")

	event := mustEvent(t, "room-1", events.EventTypeWordChoicesAvailable, events.WordChoicesPayload{Round: 1, Choices: []string{"cat"}})
	cm.BroadcastToPlayer("room-1", "alice", event)

	assert.Equal(t, event.ID, recv(t, tab1).ID)
	assert.Equal(t, event.ID, recv(t, tab2).ID)
	assert.Empty(t, drain(t, cm, someoneElse))
	assert.Empty(t, drain(t, cm, elsewhere), "player events stay inside the room")
}

func TestBroadcastToPlayerWithoutConnections(t *testing.T) {
	cm, _ := newTestManager(t)
	conn := attach(cm, "room-1")

	cm.BroadcastToPlayer("room-1", "ghost", mustEvent(t, "room-1", events.EventTypeGameStateUpdated, events.GameStatePayload{}))

	assert.Empty(t, drain(t, cm, conn))
}

func TestUnregisterConnection(t *testing.T) {
	cm, registry := newTestManager(t)
	conn := attach(cm, "room-1")
	registry.Bind(conn.ID, "alice")

	cm.unregisterConnection(conn)
	cm.unregisterConnection(conn)

	_, bound := registry.PlayerOf(conn.ID)
	assert.False(t, bound)
	_, open := <-conn.Send
	assert.False(t, open)

	stats := cm.GetConnectionStats()
	assert.Equal(t, 0, stats.TotalConnections)
	assert.Equal(t, 0, stats.ActiveRooms)
}

func TestLastConnectionGoneAnnouncesDisconnect(t *testing.T) {
	cm, registry := newTestManager(t)
	tab1 := attach(cm, "room-1")
	tab2 := attach(cm, "room-1")
	bob := attach(cm, "room-1")
	elsewhere := attach(cm, "room-2")
	registry.Bind(tab1.ID, "alice")
	registry.Bind(tab2.ID, "alice")
	registry.Bind(bob.ID, "bob")
	registry.Bind(elsewhere.ID, "alice")

	cm.unregisterConnection(tab1)
	assert.NotContains(t, types(drain(t, cm, bob)), events.EventTypePlayerDisconnected, "alice still has a tab open")

	cm.unregisterConnection(tab2)
	var payload events.PlayerDisconnectedPayload
	require.NoError(t, waitFor(t, bob, events.EventTypePlayerDisconnected).Decode(&payload))
	assert.Equal(t, "alice", payload.PlayerID)
	assert.Empty(t, drain(t, cm, elsewhere))

	// A connection that never joined leaves silently.
	anonymous := attach(cm, "room-1")
	cm.unregisterConnection(anonymous)
	assert.Empty(t, drain(t, cm, bob))
}

func TestGetConnectionStats(t *testing.T) {
	cm, registry := newTestManager(t)
	a := attach(cm, "room-1")
	attach(cm, "room-1")
	attach(cm, "room-2")
	registry.Bind(a.ID, "alice")

	stats := cm.GetConnectionStats()
	assert.Equal(t, 3, stats.TotalConnections)
	assert.Equal(t, 2, stats.ActiveRooms)
	assert.Equal(t, 1, stats.BoundConnections)
	assert.Equal(t, map[string]int{"room-1": 2, "room-2": 1}, stats.RoomConnections)
}

func TestCommandBeforeJoinIsRejected(t *testing.T) {
	cm, _ := newTestManager(t)
	handler := &mockHandler{}
	cm.SetHandler(handler)
	conn := attach(cm, "room-1")

	sendCommand(t, conn, CommandStartGame, nil)

	event := waitFor(t, conn, events.EventTypeCommandRejected)
	var payload events.CommandRejectedPayload
	require.NoError(t, event.Decode(&payload))
	assert.Equal(t, string(CommandStartGame), payload.Command)
	assert.Equal(t, string(orchestrator.KindAuthorization), payload.Code)
	handler.AssertNotCalled(t, "StartGame", mock.Anything, mock.Anything)
}

func TestJoinRoomBindsConnection(t *testing.T) {
	cm, registry := newTestManager(t)
	handler := &mockHandler{}
	handler.On("JoinRoom", "room-1", "alice", "Alice").Return(nil)
	handler.On("HandleGuess", "room-1", "alice", "cat").Return(orchestrator.GuessResult{Correct: true}, nil)
	handler.On("StartGame", "room-1", "alice").Return(nil)
	cm.SetHandler(handler)
	conn := attach(cm, "room-1")

	sendCommand(t, conn, CommandJoinRoom, JoinRoomCommand{PlayerID: "alice", DisplayName: "Alice"})
	playerID, bound := registry.PlayerOf(conn.ID)
	require.True(t, bound)
	assert.Equal(t, "alice", playerID)

	sendCommand(t, conn, CommandStartGame, nil)
	sendCommand(t, conn, CommandSendGuess, SendGuessCommand{Text: "cat"})

	assert.Empty(t, drain(t, cm, conn))
	handler.AssertExpectations(t)
}

func TestJoinRoomFailureLeavesConnectionUnbound(t *testing.T) {
	cm, registry := newTestManager(t)
	handler := &mockHandler{}
	handler.On("JoinRoom", "room-1", "alice", "").Return(orchestrator.ErrRoomNotFound)
	cm.SetHandler(handler)
	conn := attach(cm, "room-1")

	sendCommand(t, conn, CommandJoinRoom, JoinRoomCommand{PlayerID: "alice"})

	_, bound := registry.PlayerOf(conn.ID)
	assert.False(t, bound)

	var payload events.CommandRejectedPayload
	require.NoError(t, waitFor(t, conn, events.EventTypeCommandRejected).Decode(&payload))
	assert.Equal(t, string(orchestrator.KindNotFound), payload.Code)
}

func TestCommandRouting(t *testing.T) {
	cm, registry := newTestManager(t)
	handler := &mockHandler{}
	handler.On("ChooseWord", "room-1", "cat", "alice").Return(nil)
	handler.On("RelayStroke", "room-1", "alice", `{"x":1}`).Return(nil)
	handler.On("SendChat", "room-1", "alice", "hello").Return(nil)
	handler.On("Undo", "room-1", "alice").Return(nil)
	handler.On("Redo", "room-1", "alice").Return(nil)
	handler.On("ClearCanvas", "room-1", "alice").Return(nil)
	handler.On("EndGame", "room-1", "alice").Return(nil)
	cm.SetHandler(handler)
	conn := attach(cm, "room-1")
	registry.Bind(conn.ID, "alice")

	sendCommand(t, conn, CommandConfirmWordSelection, ConfirmWordSelectionCommand{Word: "cat"})
	sendCommand(t, conn, CommandSendStroke, SendStrokeCommand{Payload: json.RawMessage(`{"x":1}`)})
	sendCommand(t, conn, CommandSendChat, SendChatCommand{Text: "hello"})
	sendCommand(t, conn, CommandUndo, nil)
	sendCommand(t, conn, CommandRedo, nil)
	sendCommand(t, conn, CommandClearCanvas, nil)
	sendCommand(t, conn, CommandEndGame, nil)

	assert.Empty(t, drain(t, cm, conn))
	handler.AssertExpectations(t)
}

func TestHandlerErrorsAreRejectedToSender(t *testing.T) {
	cm, registry := newTestManager(t)
	handler := &mockHandler{}
	handler.On("ChooseWord", "room-1", "dog", "bob").Return(orchestrator.ErrNotPainter)
	handler.On("SendChat", "room-1", "bob", "x").Return(errors.New("boom"))
	cm.SetHandler(handler)
	sender := attach(cm, "room-1")
	bystander := attach(cm, "room-1")
	registry.Bind(sender.ID, "bob")

	sendCommand(t, sender, CommandConfirmWordSelection, ConfirmWordSelectionCommand{Word: "dog"})
	sendCommand(t, sender, CommandSendChat, SendChatCommand{Text: "x"})

	got := drain(t, cm, sender)
	require.Len(t, got, 2)

	var first, second events.CommandRejectedPayload
	require.NoError(t, got[0].Decode(&first))
	require.NoError(t, got[1].Decode(&second))
	assert.Equal(t, string(orchestrator.KindAuthorization), first.Code)
	assert.Equal(t, string(orchestrator.KindInternal), second.Code)
	assert.Equal(t, "internal error", second.Message)

	assert.Empty(t, drain(t, cm, bystander))
}

func TestMalformedCommands(t *testing.T) {
	cm, registry := newTestManager(t)
	handler := &mockHandler{}
	cm.SetHandler(handler)
	conn := attach(cm, "room-1")
	registry.Bind(conn.ID, "alice")

	conn.handleClientMessage([]byte("not json"))
	sendCommand(t, conn, CommandSendGuess, nil)
	sendCommand(t, conn, "Dance", nil)

	got := drain(t, cm, conn)
	require.Len(t, got, 3)
	for _, event := range got {
		assert.Equal(t, events.EventTypeCommandRejected, event.Type)
		var payload events.CommandRejectedPayload
		require.NoError(t, event.Decode(&payload))
		assert.Equal(t, string(orchestrator.KindValidation), payload.Code)
	}
	handler.AssertNotCalled(t, "HandleGuess", mock.Anything, mock.Anything, mock.Anything)
}

func TestLeaveRoomUnbinds(t *testing.T) {
	cm, registry := newTestManager(t)
	handler := &mockHandler{}
	handler.On("LeaveRoom", "room-1", "alice").Return(nil)
	cm.SetHandler(handler)
	conn := attach(cm, "room-1")
	registry.Bind(conn.ID, "alice")

	sendCommand(t, conn, CommandLeaveRoom, nil)

	_, bound := registry.PlayerOf(conn.ID)
	assert.False(t, bound)
	handler.AssertExpectations(t)
}

func TestCommandWithoutHandler(t *testing.T) {
	cm, _ := newTestManager(t)
	conn := attach(cm, "room-1")

	sendCommand(t, conn, CommandJoinRoom, JoinRoomCommand{PlayerID: "alice"})

	var payload events.CommandRejectedPayload
	require.NoError(t, waitFor(t, conn, events.EventTypeCommandRejected).Decode(&payload))
	assert.Equal(t, string(orchestrator.KindInternal), payload.Code)
}

func TestSlowConnectionIsDropped(t *testing.T) {
	registry := presence.NewRegistry()
	cfg := DefaultConnectionConfig()
	cfg.SendBufferSize = 1
	cm := NewConnectionManager(cfg, registry)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cm.Start(ctx)

	conn := attach(cm, "room-1")
	registry.Bind(conn.ID, "alice")

	for i := 0; i < 3; i++ {
		cm.BroadcastToRoom("room-1", mustEvent(t, "room-1", events.EventTypeTimerUpdate, events.TimerUpdatePayload{RemainingSeconds: i}))
	}

	require.Eventually(t, func() bool {
		return cm.GetConnectionStats().TotalConnections == 0
	}, 2*time.Second, 10*time.Millisecond)
	_, bound := registry.PlayerOf(conn.ID)
	assert.False(t, bound)
}
