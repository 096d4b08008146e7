package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/drawguess/go/internal/models"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBRoomToModel(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	row := RoomRow{
		ID:          "room-1",
		CreatorID:   "alice",
		Status:      "waiting",
		TotalRounds: 3,
		Categories:  []string{"animals", "food"},
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	players := []RoomPlayerRow{
		{PlayerID: "alice", DisplayName: sql.NullString{String: "Alice", Valid: true}, JoinedAt: created},
		{PlayerID: "bob", JoinedAt: created.Add(time.Minute)},
	}

	room := dbRoomToModel(row, players)

	assert.Equal(t, models.RoomStatusWaiting, room.Status)
	assert.Equal(t, 3, room.TotalRounds)
	assert.Equal(t, []string{"animals", "food"}, room.Categories)
	require.Len(t, room.Players, 2)
	assert.Equal(t, "Alice", room.Players[0].DisplayName)
	assert.Equal(t, "bob", room.Players[1].DisplayName, "missing display names fall back to the player id")
	assert.True(t, room.HasPlayer("bob"))
}

func TestDBGameResultToModel(t *testing.T) {
	id := uuid.New()
	finished := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

	result, err := dbGameResultToModel(GameResultRow{
		ID:          id,
		RoomID:      "room-1",
		FinalScores: pqtype.NullRawMessage{RawMessage: []byte(`{"alice":150,"bob":100}`), Valid: true},
		FinishedAt:  finished,
	})
	require.NoError(t, err)
	assert.Equal(t, id, result.ID)
	assert.Equal(t, map[string]int{"alice": 150, "bob": 100}, result.FinalScores)

	empty, err := dbGameResultToModel(GameResultRow{ID: id, RoomID: "room-1"})
	require.NoError(t, err)
	assert.Empty(t, empty.FinalScores)

	_, err = dbGameResultToModel(GameResultRow{FinalScores: pqtype.NullRawMessage{RawMessage: []byte("["), Valid: true}})
	assert.Error(t, err)
}

func TestSchemaIsEmbedded(t *testing.T) {
	for _, table := range []string{"rooms", "room_players", "game_results", "chat_messages", "words"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}

func TestWritesAreSafeToReplay(t *testing.T) {
	// The writer retries a write whose commit may already have landed.
	assert.Contains(t, insertGameResult, "ON CONFLICT (id) DO NOTHING")
	assert.Contains(t, insertChatMessage, "ON CONFLICT (id) DO NOTHING")

	// A late status write cannot reopen a finished room.
	assert.Contains(t, updateRoomStatus, "CASE WHEN status = 'finished' THEN status ELSE $2 END")
}
