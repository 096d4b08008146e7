package models

import (
	"time"
)

// RoomStatus defines the lifecycle status of a persisted room.
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusPlaying  RoomStatus = "playing"
	RoomStatusFinished RoomStatus = "finished"
	RoomStatusClosed   RoomStatus = "closed"
)

// RoomPlayer is a player seated in a room, in join order.
type RoomPlayer struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Room is the durable room record the session core reads when a game starts.
type Room struct {
	ID          string       `json:"id"`
	CreatorID   string       `json:"creator_id"`
	Status      RoomStatus   `json:"status"`
	TotalRounds int          `json:"total_rounds"`
	Categories  []string     `json:"categories"`
	Players     []RoomPlayer `json:"players"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// HasPlayer reports whether playerID is seated in the room.
func (r *Room) HasPlayer(playerID string) bool {
	for _, p := range r.Players {
		if p.ID == playerID {
			return true
		}
	}
	return false
}
