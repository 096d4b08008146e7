package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/drawguess/go/internal/game/events"
	"github.com/mcdev12/drawguess/go/internal/game/runtime"
)

// RelayStroke forwards the painter's opaque stroke payload to the room.
func (o *Orchestrator) RelayStroke(ctx context.Context, roomID, playerID string, payload json.RawMessage) error {
	if len(payload) == 0 || string(payload) == "null" {
		return ErrEmptyStroke
	}
	return o.relayCanvas(roomID, playerID, events.EventTypeStrokeReceived, events.StrokePayload{
		PlayerID: playerID,
		Payload:  payload,
	})
}

func (o *Orchestrator) Undo(ctx context.Context, roomID, playerID string) error {
	return o.relayCanvas(roomID, playerID, events.EventTypeCanvasUndo, events.CanvasActionPayload{PlayerID: playerID})
}

func (o *Orchestrator) Redo(ctx context.Context, roomID, playerID string) error {
	return o.relayCanvas(roomID, playerID, events.EventTypeCanvasRedo, events.CanvasActionPayload{PlayerID: playerID})
}

func (o *Orchestrator) ClearCanvas(ctx context.Context, roomID, playerID string) error {
	return o.relayCanvas(roomID, playerID, events.EventTypeCanvasCleared, events.CanvasActionPayload{PlayerID: playerID})
}

// relayCanvas checks that the caller is the drawing painter and broadcasts.
func (o *Orchestrator) relayCanvas(roomID, playerID string, eventType events.EventType, payload interface{}) error {
	if err := validateID("room id", roomID); err != nil {
		return err
	}
	if err := validateID("player id", playerID); err != nil {
		return err
	}

	state, err := o.runningState(roomID)
	if err != nil {
		return err
	}
	defer state.Unlock()

	if state.Phase != runtime.PhaseDrawingAndGuessing {
		return fmt.Errorf("%w: %s", ErrWrongPhase, state.Phase)
	}
	if playerID != state.CurrentPainterID {
		return ErrNotPainter
	}

	o.emit(roomID, eventType, payload)
	return nil
}
