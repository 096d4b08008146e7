package orchestrator

import (
	"errors"
	"fmt"
	"unicode"

	"github.com/mcdev12/drawguess/go/internal/models"
)

var (
	// validation
	ErrInvalidID          = errors.New("invalid id")
	ErrWrongPhase         = errors.New("action not allowed in current phase")
	ErrInvalidWordChoice  = errors.New("word is not one of the offered choices")
	ErrEmptyGuess         = errors.New("guess is empty")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrMessageTooLong     = errors.New("message too long")
	ErrEmptyStroke        = errors.New("stroke payload is empty")
	ErrNotEnoughPlayers   = errors.New("not enough players to start")
	ErrRoomNotWaiting     = errors.New("room is not waiting for a game")
	ErrMessageRevealsWord = errors.New("message would reveal the word")

	// authorization
	ErrNotHost            = errors.New("only the host can do this")
	ErrNotPainter         = errors.New("only the painter can do this")
	ErrPainterCannotGuess = errors.New("the painter cannot guess")

	// not found
	ErrRoomNotFound   = models.ErrRoomNotFound
	ErrPlayerNotFound = errors.New("player not found in room")
	ErrGameNotRunning = errors.New("no game running in room")

	// conflict
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrAlreadyGuessed     = errors.New("player already guessed the word")
)

// Kind classifies an orchestrator error for the transport layers.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindInternal      Kind = "internal"
)

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{ErrInvalidID, ErrWrongPhase, ErrInvalidWordChoice, ErrEmptyGuess, ErrEmptyMessage,
		ErrMessageTooLong, ErrEmptyStroke, ErrNotEnoughPlayers, ErrRoomNotWaiting, ErrMessageRevealsWord}},
	{KindAuthorization, []error{ErrNotHost, ErrNotPainter, ErrPainterCannotGuess}},
	{KindNotFound, []error{ErrRoomNotFound, ErrPlayerNotFound, ErrGameNotRunning}},
	{KindConflict, []error{ErrGameAlreadyStarted, ErrAlreadyGuessed}},
}

// KindOf returns the class of err, KindInternal for anything unrecognized.
func KindOf(err error) Kind {
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	return KindInternal
}

const maxIDLength = 64

// validateID rejects empty, oversized and control-character ids.
func validateID(field, id string) error {
	if id == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalidID, field)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: %s longer than %d bytes", ErrInvalidID, field, maxIDLength)
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %s contains control characters", ErrInvalidID, field)
		}
	}
	return nil
}
