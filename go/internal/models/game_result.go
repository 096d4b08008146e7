package models

import (
	"time"

	"github.com/google/uuid"
)

// GameResult is the history row written when a game ends.
type GameResult struct {
	ID          uuid.UUID      `json:"id"`
	RoomID      string         `json:"room_id"`
	FinalScores map[string]int `json:"final_scores"`
	FinishedAt  time.Time      `json:"finished_at"`
}
