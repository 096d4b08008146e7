package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the statements of the game schema
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// RoomRow is a row of rooms
type RoomRow struct {
	ID          string
	CreatorID   string
	Status      string
	TotalRounds int32
	Categories  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoomPlayerRow is a row of room_players
type RoomPlayerRow struct {
	PlayerID    string
	DisplayName sql.NullString
	JoinedAt    time.Time
}

const getRoom = `
SELECT id, creator_id, status, total_rounds, categories, created_at, updated_at
FROM rooms
WHERE id = $1`

func (q *Queries) GetRoom(ctx context.Context, id string) (RoomRow, error) {
	var r RoomRow
	err := q.db.QueryRowContext(ctx, getRoom, id).Scan(
		&r.ID,
		&r.CreatorID,
		&r.Status,
		&r.TotalRounds,
		pq.Array(&r.Categories),
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

const listRoomPlayers = `
SELECT player_id, display_name, joined_at
FROM room_players
WHERE room_id = $1
ORDER BY joined_at, player_id`

func (q *Queries) ListRoomPlayers(ctx context.Context, roomID string) ([]RoomPlayerRow, error) {
	rows, err := q.db.QueryContext(ctx, listRoomPlayers, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RoomPlayerRow
	for rows.Next() {
		var p RoomPlayerRow
		if err := rows.Scan(&p.PlayerID, &p.DisplayName, &p.JoinedAt); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// A finished room stays finished.
const updateRoomStatus = `
UPDATE rooms
SET status = CASE WHEN status = 'finished' THEN status ELSE $2 END, updated_at = now()
WHERE id = $1`

// UpdateRoomStatus returns the number of rooms matched
func (q *Queries) UpdateRoomStatus(ctx context.Context, id, status string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateRoomStatus, id, status)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type InsertGameResultParams struct {
	ID          uuid.UUID
	RoomID      string
	FinalScores pqtype.NullRawMessage
	FinishedAt  time.Time
}

const insertGameResult = `
INSERT INTO game_results (id, room_id, final_scores, finished_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`

func (q *Queries) InsertGameResult(ctx context.Context, arg InsertGameResultParams) error {
	_, err := q.db.ExecContext(ctx, insertGameResult, arg.ID, arg.RoomID, arg.FinalScores, arg.FinishedAt)
	return err
}

type GameResultRow struct {
	ID          uuid.UUID
	RoomID      string
	FinalScores pqtype.NullRawMessage
	FinishedAt  time.Time
}

const listGameResults = `
SELECT id, room_id, final_scores, finished_at
FROM game_results
WHERE room_id = $1
ORDER BY finished_at DESC`

func (q *Queries) ListGameResults(ctx context.Context, roomID string) ([]GameResultRow, error) {
	rows, err := q.db.QueryContext(ctx, listGameResults, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []GameResultRow
	for rows.Next() {
		var r GameResultRow
		if err := rows.Scan(&r.ID, &r.RoomID, &r.FinalScores, &r.FinishedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type InsertChatMessageParams struct {
	ID       uuid.UUID
	RoomID   string
	SenderID string
	Content  string
	SentAt   time.Time
}

const insertChatMessage = `
INSERT INTO chat_messages (id, room_id, sender_id, content, sent_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`

func (q *Queries) InsertChatMessage(ctx context.Context, arg InsertChatMessageParams) error {
	_, err := q.db.ExecContext(ctx, insertChatMessage, arg.ID, arg.RoomID, arg.SenderID, arg.Content, arg.SentAt)
	return err
}
