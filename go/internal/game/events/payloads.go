package events

import (
	"encoding/json"
	"time"
)

// Event payload types shared by the orchestrator, the timer and the gateway.
// Room-wide payloads carry no target word and no word choices; only
// RoundSummary reveals the word and WordChoicesPayload is sent to the painter only.

// PlayerJoinedPayload is the payload for a PlayerJoined event
type PlayerJoinedPayload struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name,omitempty"`
}

// PlayerLeftPayload is the payload for a PlayerLeft event
type PlayerLeftPayload struct {
	PlayerID string `json:"player_id"`
}

// PlayerDisconnectedPayload is the payload for a PlayerDisconnected event.
// The player keeps their seat and can rejoin.
type PlayerDisconnectedPayload struct {
	PlayerID string `json:"player_id"`
}

// GameStartedPayload is the payload for a GameStarted event
type GameStartedPayload struct {
	TotalRounds int       `json:"total_rounds"`
	PlayerIDs   []string  `json:"player_ids"`
	StartedAt   time.Time `json:"started_at"`
}

// GameStatePayload is the public view of a running game
type GameStatePayload struct {
	Round            int            `json:"round"`
	TotalRounds      int            `json:"total_rounds"`
	PainterID        string         `json:"painter_id,omitempty"`
	Phase            string         `json:"phase"`
	Scores           map[string]int `json:"scores"`
	GuessedPlayerIDs []string       `json:"guessed_player_ids,omitempty"`
	TimeRemainingSec *int           `json:"time_remaining_sec,omitempty"`
}

// WordChoicesPayload is sent to the painter's connections only
type WordChoicesPayload struct {
	Round        int      `json:"round"`
	Choices      []string `json:"choices"`
	TimeLimitSec int      `json:"time_limit_sec"`
}

// TimerUpdatePayload contains a once-per-second countdown value
type TimerUpdatePayload struct {
	Phase            string `json:"phase"`
	RemainingSeconds int    `json:"remaining_seconds"`
}

// TimerStoppedPayload is the payload for a TimerStopped event
type TimerStoppedPayload struct {
	Phase string `json:"phase"`
}

// TimerCompletedPayload is the payload for a TimerCompleted event
type TimerCompletedPayload struct {
	Phase string `json:"phase"`
}

// GuessPayload is the payload for CorrectGuess and IncorrectGuess events
type GuessPayload struct {
	PlayerID     string `json:"player_id"`
	Text         string `json:"text"`
	PointsEarned int    `json:"points_earned,omitempty"`
}

// RoundSummary describes a finished round
type RoundSummary struct {
	Round           int            `json:"round"`
	PainterID       string         `json:"painter_id"`
	Word            string         `json:"word"`
	CorrectGuessers []string       `json:"correct_guessers"`
	Scores          map[string]int `json:"scores"`
	Reason          string         `json:"reason"`
}

// RoundOverPayload is the payload for a RoundOver event
type RoundOverPayload struct {
	Summary RoundSummary `json:"summary"`
}

// GameEndedPayload is the payload for a GameEnded event
type GameEndedPayload struct {
	FinalScores  map[string]int `json:"final_scores"`
	RoundsPlayed int            `json:"rounds_played"`
	Reason       string         `json:"reason"`
	EndedAt      time.Time      `json:"ended_at"`
}

// StrokePayload relays an opaque drawing payload from the painter
type StrokePayload struct {
	PlayerID string          `json:"player_id"`
	Payload  json.RawMessage `json:"payload"`
}

// CanvasActionPayload is the payload for undo, redo and clear events
type CanvasActionPayload struct {
	PlayerID string `json:"player_id"`
}

// ChatMessagePayload is the payload for a ChatMessage event
type ChatMessagePayload struct {
	MessageID string    `json:"message_id"`
	PlayerID  string    `json:"player_id"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
}

// PersistenceWarningPayload tells clients a durable write failed while the game continues
type PersistenceWarningPayload struct {
	Operation string `json:"operation"`
	Message   string `json:"message"`
}

// CommandRejectedPayload is sent to the connection whose command was refused
type CommandRejectedPayload struct {
	Command string `json:"command"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
