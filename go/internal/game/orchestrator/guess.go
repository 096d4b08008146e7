package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/mcdev12/drawguess/go/internal/game/events"
	"github.com/mcdev12/drawguess/go/internal/game/runtime"
	"github.com/mcdev12/drawguess/go/internal/models"
	"github.com/rs/zerolog/log"
)

// GuessResult is the outcome of one guess.
type GuessResult struct {
	Correct      bool
	PointsEarned int
	RoundEnded   bool
}

// HandleGuess checks a guess against the target word. The painter and players
// who already guessed are rejected without any state change.
func (o *Orchestrator) HandleGuess(ctx context.Context, roomID, playerID, text string) (GuessResult, error) {
	if err := validateID("room id", roomID); err != nil {
		return GuessResult{}, err
	}
	if err := validateID("player id", playerID); err != nil {
		return GuessResult{}, err
	}
	if strings.TrimSpace(text) == "" {
		return GuessResult{}, ErrEmptyGuess
	}

	state, err := o.runningState(roomID)
	if err != nil {
		return GuessResult{}, err
	}
	defer state.Unlock()

	return o.guessLocked(state, playerID, text)
}

func (o *Orchestrator) guessLocked(state *runtime.ActiveGameState, playerID, text string) (GuessResult, error) {
	player, ok := state.Player(playerID)
	if !ok {
		return GuessResult{}, ErrPlayerNotFound
	}
	if state.Phase != runtime.PhaseDrawingAndGuessing {
		return GuessResult{}, fmt.Errorf("%w: %s", ErrWrongPhase, state.Phase)
	}
	if playerID == state.CurrentPainterID {
		return GuessResult{}, ErrPainterCannotGuess
	}
	if player.HasGuessedCorrectly {
		return GuessResult{}, ErrAlreadyGuessed
	}

	text = strings.TrimSpace(text)
	if normalize(text) != normalize(state.CurrentTargetWord) {
		o.emit(state.RoomID, events.EventTypeIncorrectGuess, events.GuessPayload{PlayerID: playerID, Text: text})
		return GuessResult{}, nil
	}

	state.MarkGuessedCorrectly(playerID)
	points := o.awardCorrectGuessLocked(state, playerID)

	log.Info().
		Str("room_id", state.RoomID).
		Str("player_id", playerID).
		Int("round", state.CurrentRound).
		Int("points", points).
		Msg("correct guess")

	o.emit(state.RoomID, events.EventTypeCorrectGuess, events.GuessPayload{
		PlayerID:     playerID,
		Text:         text,
		PointsEarned: points,
	})
	o.broadcastStateLocked(state)

	result := GuessResult{Correct: true, PointsEarned: points}
	if state.AllGuessersCorrect() {
		o.endRoundLocked(state, RoundEndAllGuessed)
		result.RoundEnded = true
	}
	return result, nil
}

// awardCorrectGuessLocked applies the flat scoring rule: the guesser earns
// GuesserPoints and the painter earns PainterPoints per correct guesser.
func (o *Orchestrator) awardCorrectGuessLocked(state *runtime.ActiveGameState, guesserID string) int {
	state.Scores[guesserID] += o.cfg.GuesserPoints
	if state.CurrentPainterID != "" {
		state.Scores[state.CurrentPainterID] += o.cfg.PainterPoints
	}
	return o.cfg.GuesserPoints
}

// SendChat relays a chat line to the room and stores it. While drawing, a
// guesser typing the word is treated as a guess, and the painter or a player
// who already guessed cannot post it.
func (o *Orchestrator) SendChat(ctx context.Context, roomID, playerID, text string) error {
	if err := validateID("room id", roomID); err != nil {
		return err
	}
	if err := validateID("player id", playerID); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if limit := o.cfg.MaxChatLength; limit > 0 && utf8.RuneCountInString(text) > limit {
		return fmt.Errorf("%w: limit is %d characters", ErrMessageTooLong, limit)
	}

	if state, ok := o.rooms.TryGet(roomID); ok {
		state.Lock()
		if !state.Ended() && state.Phase == runtime.PhaseDrawingAndGuessing &&
			strings.Contains(normalize(text), normalize(state.CurrentTargetWord)) {
			defer state.Unlock()
			if normalize(text) == normalize(state.CurrentTargetWord) {
				if p, seated := state.Player(playerID); seated && playerID != state.CurrentPainterID && !p.HasGuessedCorrectly {
					_, err := o.guessLocked(state, playerID, text)
					return err
				}
			}
			return ErrMessageRevealsWord
		}
		state.Unlock()
	}

	msg := models.ChatMessage{
		ID:       uuid.New(),
		RoomID:   roomID,
		SenderID: playerID,
		Content:  text,
		SentAt:   o.clock.Now().UTC(),
	}
	o.emit(roomID, events.EventTypeChatMessage, events.ChatMessagePayload{
		MessageID: msg.ID.String(),
		PlayerID:  playerID,
		Text:      text,
		SentAt:    msg.SentAt,
	})
	o.writer.Enqueue(roomID, "record_chat_message", func(ctx context.Context) error {
		return o.store.RecordChatMessage(ctx, msg)
	})
	return nil
}
