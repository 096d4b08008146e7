package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GameEvent is the envelope of every server to client message
type GameEvent struct {
	ID        string          `json:"id"`        // Event UUID
	RoomID    string          `json:"room_id"`   // Room the event belongs to
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventType names a server to client event
type EventType string

const (
	EventTypePlayerJoined         EventType = "PlayerJoined"
	EventTypePlayerLeft           EventType = "PlayerLeft"
	EventTypePlayerDisconnected   EventType = "PlayerDisconnected"
	EventTypeGameStarted          EventType = "GameStarted"
	EventTypeGameStateUpdated     EventType = "GameStateUpdated"
	EventTypeWordChoicesAvailable EventType = "WordChoicesAvailable"
	EventTypeTimerUpdate          EventType = "TimerUpdate"
	EventTypeTimerStopped         EventType = "TimerStopped"
	EventTypeTimerCompleted       EventType = "TimerCompleted"
	EventTypeCorrectGuess         EventType = "CorrectGuess"
	EventTypeIncorrectGuess       EventType = "IncorrectGuess"
	EventTypeRoundOver            EventType = "RoundOver"
	EventTypeGameEnded            EventType = "GameEnded"
	EventTypeStrokeReceived       EventType = "StrokeReceived"
	EventTypeCanvasUndo           EventType = "CanvasUndo"
	EventTypeCanvasRedo           EventType = "CanvasRedo"
	EventTypeCanvasCleared        EventType = "CanvasCleared"
	EventTypeChatMessage          EventType = "ChatMessage"
	EventTypePersistenceWarning   EventType = "PersistenceWarning"
	EventTypeCommandRejected      EventType = "CommandRejected"
)

// New builds an event with a fresh id and the payload marshalled as data.
func New(roomID string, eventType EventType, payload interface{}) (*GameEvent, error) {
	event := &GameEvent{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
	if payload == nil {
		return event, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	event.Data = data
	return event, nil
}

// Decode unmarshals the event data into v.
func (e *GameEvent) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}

// IsLifecycle reports whether the event is published to the event bus in
// addition to the websocket fan-out.
func (t EventType) IsLifecycle() bool {
	switch t {
	case EventTypeGameStarted, EventTypeRoundOver, EventTypeGameEnded:
		return true
	}
	return false
}
