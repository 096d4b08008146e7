package orchestrator

import (
	"context"
	"fmt"

	"github.com/mcdev12/drawguess/go/internal/game/events"
	"github.com/mcdev12/drawguess/go/internal/game/runtime"
	"github.com/rs/zerolog/log"
)

// JoinRoom announces a player. During a running game a new player is seated
// at the end of the painter rotation, and a returning player gets a private
// snapshot, plus the word choices again when they are the choosing painter.
func (o *Orchestrator) JoinRoom(ctx context.Context, roomID, playerID, displayName string) error {
	if err := validateID("room id", roomID); err != nil {
		return err
	}
	if err := validateID("player id", playerID); err != nil {
		return err
	}

	state, err := o.runningState(roomID)
	if err != nil {
		if _, err := o.store.LoadRoom(ctx, roomID); err != nil {
			return fmt.Errorf("load room %s: %w", roomID, err)
		}
		o.emit(roomID, events.EventTypePlayerJoined, events.PlayerJoinedPayload{PlayerID: playerID, DisplayName: displayName})
		return nil
	}
	defer state.Unlock()

	if state.AddPlayer(playerID, displayName) {
		log.Info().Str("room_id", roomID).Str("player_id", playerID).Msg("player joined running game")
		o.emit(roomID, events.EventTypePlayerJoined, events.PlayerJoinedPayload{PlayerID: playerID, DisplayName: displayName})
	} else {
		log.Debug().Str("room_id", roomID).Str("player_id", playerID).Msg("player rejoined running game")
	}

	o.emitTo(roomID, playerID, events.EventTypeGameStateUpdated, o.publicStateLocked(state))
	if playerID == state.CurrentPainterID && state.Phase == runtime.PhaseWaitingForPainterToChooseWord {
		o.sendWordChoicesLocked(state)
	}
	return nil
}

// LeaveRoom removes a player from the room's game. The round ends when the
// painter leaves or when everyone left has already guessed, and the game ends
// when too few players remain.
func (o *Orchestrator) LeaveRoom(ctx context.Context, roomID, playerID string) error {
	if err := validateID("room id", roomID); err != nil {
		return err
	}
	if err := validateID("player id", playerID); err != nil {
		return err
	}

	state, err := o.runningState(roomID)
	if err != nil {
		if _, err := o.store.LoadRoom(ctx, roomID); err != nil {
			return fmt.Errorf("load room %s: %w", roomID, err)
		}
		o.emit(roomID, events.EventTypePlayerLeft, events.PlayerLeftPayload{PlayerID: playerID})
		return nil
	}
	defer state.Unlock()

	if !state.RemovePlayer(playerID) {
		return ErrPlayerNotFound
	}
	log.Info().Str("room_id", roomID).Str("player_id", playerID).Int("remaining", state.PlayerCount()).Msg("player left running game")
	o.emit(roomID, events.EventTypePlayerLeft, events.PlayerLeftPayload{PlayerID: playerID})

	inRound := state.Phase == runtime.PhaseWaitingForPainterToChooseWord || state.Phase == runtime.PhaseDrawingAndGuessing

	switch {
	case state.PlayerCount() < o.cfg.MinPlayers:
		if inRound {
			o.endRoundLocked(state, RoundEndNotEnoughPlayers)
		} else {
			o.endGameLocked(state, GameEndNotEnoughPlayers)
		}
	case inRound && playerID == state.CurrentPainterID:
		o.endRoundLocked(state, RoundEndPainterLeft)
	case state.Phase == runtime.PhaseDrawingAndGuessing && state.AllGuessersCorrect():
		o.endRoundLocked(state, RoundEndAllGuessed)
	default:
		o.broadcastStateLocked(state)
	}
	return nil
}
