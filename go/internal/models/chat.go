package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is a chat line sent in a room.
type ChatMessage struct {
	ID       uuid.UUID `json:"id"`
	RoomID   string    `json:"room_id"`
	SenderID string    `json:"sender_id"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sent_at"`
}
