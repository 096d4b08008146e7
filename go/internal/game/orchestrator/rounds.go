package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/drawguess/go/internal/game/events"
	"github.com/mcdev12/drawguess/go/internal/game/runtime"
	"github.com/mcdev12/drawguess/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Reasons carried by a round summary.
const (
	RoundEndAllGuessed       = "all_guessed"
	RoundEndTimeUp           = "time_up"
	RoundEndPainterLeft      = "painter_left"
	RoundEndNotEnoughPlayers = "not_enough_players"
)

// Reasons carried by GameEnded.
const (
	GameEndCompleted        = "completed"
	GameEndStoppedByHost    = "stopped_by_host"
	GameEndNotEnoughPlayers = "not_enough_players"
)

// StartGame creates the room's runtime state and starts the first round.
func (o *Orchestrator) StartGame(ctx context.Context, roomID, requesterID string) error {
	if err := validateID("room id", roomID); err != nil {
		return err
	}
	if err := validateID("requester id", requesterID); err != nil {
		return err
	}

	if _, ok := o.rooms.TryGet(roomID); ok {
		return ErrGameAlreadyStarted
	}

	room, err := o.store.LoadRoom(ctx, roomID)
	if err != nil {
		return fmt.Errorf("load room %s: %w", roomID, err)
	}
	switch room.Status {
	case models.RoomStatusWaiting:
	case models.RoomStatusPlaying:
		// No runtime state here, so the stored status outlived its game.
		log.Warn().Str("room_id", roomID).Msg("room marked playing without a running game, starting anew")
	default:
		return fmt.Errorf("%w: status is %s", ErrRoomNotWaiting, room.Status)
	}
	if room.CreatorID != requesterID {
		return ErrNotHost
	}
	if len(room.Players) < o.cfg.MinPlayers {
		return fmt.Errorf("%w: have %d, need %d", ErrNotEnoughPlayers, len(room.Players), o.cfg.MinPlayers)
	}

	choices := o.drawWords(ctx, roomID, room.Categories)

	totalRounds := room.TotalRounds
	if totalRounds < 1 {
		totalRounds = len(room.Players)
	}
	state, created := o.rooms.GetOrCreate(roomID, func() *runtime.ActiveGameState {
		s := runtime.NewActiveGameState(roomID, room.CreatorID, totalRounds, room.Categories)
		for _, p := range room.Players {
			s.AddPlayer(p.ID, p.DisplayName)
		}
		return s
	})
	if !created {
		return ErrGameAlreadyStarted
	}

	state.Lock()
	defer state.Unlock()

	o.writer.Enqueue(roomID, "update_room_status", func(ctx context.Context) error {
		return o.store.UpdateRoomStatus(ctx, roomID, models.RoomStatusPlaying)
	})

	log.Info().
		Str("room_id", roomID).
		Str("host_id", requesterID).
		Int("players", state.PlayerCount()).
		Int("total_rounds", totalRounds).
		Msg("game started")

	o.emit(roomID, events.EventTypeGameStarted, events.GameStartedPayload{
		TotalRounds: totalRounds,
		PlayerIDs:   state.PlayerIDs(),
		StartedAt:   o.clock.Now().UTC(),
	})
	o.startRoundLocked(state, choices)
	return nil
}

// startRoundLocked advances to the next round and painter and offers the
// painter the candidate words.
func (o *Orchestrator) startRoundLocked(state *runtime.ActiveGameState, choices []string) {
	state.CurrentRound++
	state.ResetRound()
	state.CurrentPainterID = state.AdvancePainter()
	state.WordChoices = choices
	state.Phase = runtime.PhaseWaitingForPainterToChooseWord
	state.RoundStartedAt = o.clock.Now()
	state.TimerGeneration = o.timer.Start(state.RoomID, state.Phase, o.cfg.WordSelectionSeconds)

	log.Info().
		Str("room_id", state.RoomID).
		Int("round", state.CurrentRound).
		Str("painter_id", state.CurrentPainterID).
		Msg("round started")

	o.broadcastStateLocked(state)
	o.sendWordChoicesLocked(state)
}

func (o *Orchestrator) sendWordChoicesLocked(state *runtime.ActiveGameState) {
	remaining, ok := o.timer.Remaining(state.RoomID)
	if !ok {
		remaining = o.cfg.WordSelectionSeconds
	}
	choices := make([]string, len(state.WordChoices))
	copy(choices, state.WordChoices)
	o.emitTo(state.RoomID, state.CurrentPainterID, events.EventTypeWordChoicesAvailable, events.WordChoicesPayload{
		Round:        state.CurrentRound,
		Choices:      choices,
		TimeLimitSec: remaining,
	})
}

// ChooseWord records the painter's word and opens the drawing window.
func (o *Orchestrator) ChooseWord(ctx context.Context, roomID, word, callerID string) error {
	if err := validateID("room id", roomID); err != nil {
		return err
	}
	if err := validateID("player id", callerID); err != nil {
		return err
	}

	state, err := o.runningState(roomID)
	if err != nil {
		return err
	}
	defer state.Unlock()

	if state.Phase != runtime.PhaseWaitingForPainterToChooseWord {
		return fmt.Errorf("%w: %s", ErrWrongPhase, state.Phase)
	}
	if callerID != state.CurrentPainterID {
		return ErrNotPainter
	}

	chosen := ""
	for _, c := range state.WordChoices {
		if normalize(c) == normalize(word) {
			chosen = c
			break
		}
	}
	if chosen == "" {
		return ErrInvalidWordChoice
	}

	o.applyWordLocked(state, chosen)
	return nil
}

func (o *Orchestrator) applyWordLocked(state *runtime.ActiveGameState, word string) {
	state.CurrentTargetWord = word
	state.WordChoices = nil
	state.Phase = runtime.PhaseDrawingAndGuessing
	state.RoundStartedAt = o.clock.Now()
	state.TimerGeneration = o.timer.Start(state.RoomID, state.Phase, o.cfg.DrawingSeconds)

	log.Info().
		Str("room_id", state.RoomID).
		Int("round", state.CurrentRound).
		Str("painter_id", state.CurrentPainterID).
		Msg("word chosen, drawing started")

	o.broadcastStateLocked(state)
}

// endRoundLocked reveals the word and either ends the game or schedules the next round.
func (o *Orchestrator) endRoundLocked(state *runtime.ActiveGameState, reason string) {
	state.Phase = runtime.PhaseRoundOver
	o.timer.Stop(state.RoomID)

	guessers := make([]string, len(state.CorrectGuessers))
	copy(guessers, state.CorrectGuessers)
	summary := events.RoundSummary{
		Round:           state.CurrentRound,
		PainterID:       state.CurrentPainterID,
		Word:            state.CurrentTargetWord,
		CorrectGuessers: guessers,
		Scores:          state.ScoresSnapshot(),
		Reason:          reason,
	}

	log.Info().
		Str("room_id", state.RoomID).
		Int("round", state.CurrentRound).
		Str("reason", reason).
		Int("correct_guessers", len(guessers)).
		Msg("round over")

	o.emit(state.RoomID, events.EventTypeRoundOver, events.RoundOverPayload{Summary: summary})

	switch {
	case state.PlayerCount() < o.cfg.MinPlayers:
		o.endGameLocked(state, GameEndNotEnoughPlayers)
		return
	case state.CurrentRound >= state.TotalRounds:
		o.endGameLocked(state, GameEndCompleted)
		return
	}

	state.NextRound = o.clock.AfterFunc(o.cfg.RoundOverDelay, func() {
		o.beginNextRound(state)
	})
}

// beginNextRound runs from the round-over delay timer.
func (o *Orchestrator) beginNextRound(state *runtime.ActiveGameState) {
	choices := o.drawWords(context.Background(), state.RoomID, state.Categories)

	state.Lock()
	defer state.Unlock()

	if state.Ended() || state.Phase != runtime.PhaseRoundOver {
		return
	}
	if current, ok := o.rooms.TryGet(state.RoomID); !ok || current != state {
		return
	}
	state.NextRound = nil

	if state.PlayerCount() < o.cfg.MinPlayers {
		o.endGameLocked(state, GameEndNotEnoughPlayers)
		return
	}
	o.startRoundLocked(state, choices)
}

// EndGame lets the host stop a running game. Scores so far are final.
func (o *Orchestrator) EndGame(ctx context.Context, roomID, requesterID string) error {
	if err := validateID("room id", roomID); err != nil {
		return err
	}
	if err := validateID("requester id", requesterID); err != nil {
		return err
	}

	state, err := o.runningState(roomID)
	if err != nil {
		return err
	}
	defer state.Unlock()

	if requesterID != state.HostID {
		return ErrNotHost
	}
	log.Info().Str("room_id", roomID).Str("host_id", requesterID).Int("round", state.CurrentRound).Msg("host stopped the game")
	o.endGameLocked(state, GameEndStoppedByHost)
	return nil
}

// endGameLocked is terminal for the state instance: it is marked ended, its
// results are persisted and it leaves the registry. Recording the result also
// marks the room finished.
func (o *Orchestrator) endGameLocked(state *runtime.ActiveGameState, reason string) {
	state.MarkEnded()
	o.timer.Stop(state.RoomID)

	now := o.clock.Now().UTC()
	result := models.GameResult{
		ID:          uuid.New(),
		RoomID:      state.RoomID,
		FinalScores: state.ScoresSnapshot(),
		FinishedAt:  now,
	}

	log.Info().
		Str("room_id", result.RoomID).
		Str("result_id", result.ID.String()).
		Str("reason", reason).
		Int("rounds_played", state.CurrentRound).
		Msg("game over")

	o.emit(result.RoomID, events.EventTypeGameEnded, events.GameEndedPayload{
		FinalScores:  result.FinalScores,
		RoundsPlayed: state.CurrentRound,
		Reason:       reason,
		EndedAt:      now,
	})

	o.writer.Enqueue(result.RoomID, "record_final_scores", func(ctx context.Context) error {
		return o.store.RecordFinalScores(ctx, result)
	})

	o.rooms.RemoveIfSame(result.RoomID, state)
}

// normalize folds case and collapses whitespace for word comparison.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
