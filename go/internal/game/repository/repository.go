package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/drawguess/go/internal/models"
	"github.com/mcdev12/drawguess/go/internal/sqlutil"
)

//go:embed schema.sql
var schema string

// Repository is the Postgres store behind the session core
type Repository struct {
	db      *sql.DB
	queries *Queries
	clock   clockwork.Clock
}

// NewRepository creates a new game repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:      db,
		queries: New(db),
		clock:   clockwork.NewRealClock(),
	}
}

// Migrate creates the game tables when they do not exist
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// LoadRoom retrieves a room and its seated players in join order
func (r *Repository) LoadRoom(ctx context.Context, roomID string) (*models.Room, error) {
	row, err := r.queries.GetRoom(ctx, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	players, err := r.queries.ListRoomPlayers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list room players: %w", err)
	}

	return dbRoomToModel(row, players), nil
}

// UpdateRoomStatus sets the lifecycle status of a room
func (r *Repository) UpdateRoomStatus(ctx context.Context, roomID string, status models.RoomStatus) error {
	n, err := r.queries.UpdateRoomStatus(ctx, roomID, string(status))
	if err != nil {
		return fmt.Errorf("failed to update room status: %w", err)
	}
	if n == 0 {
		return models.ErrRoomNotFound
	}
	return nil
}

// RecordFinalScores writes the history row of a finished game and marks the
// room finished in the same transaction. The result id makes a replay a no-op.
func (r *Repository) RecordFinalScores(ctx context.Context, result models.GameResult) error {
	raw, err := sqlutil.ToNullJSON(result.FinalScores)
	if err != nil {
		return err
	}
	finishedAt := result.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = r.clock.Now().UTC()
	}
	roomID := result.RoomID

	return sqlutil.Run(ctx, r.db, New(r.db).WithTx, func(q *Queries) error {
		if err := q.InsertGameResult(ctx, InsertGameResultParams{
			ID:          result.ID,
			RoomID:      roomID,
			FinalScores: raw,
			FinishedAt:  finishedAt,
		}); err != nil {
			return fmt.Errorf("failed to insert game result: %w", err)
		}

		n, err := q.UpdateRoomStatus(ctx, roomID, string(models.RoomStatusFinished))
		if err != nil {
			return fmt.Errorf("failed to finish room: %w", err)
		}
		if n == 0 {
			return models.ErrRoomNotFound
		}
		return nil
	})
}

// RecordChatMessage stores a chat line. Replays of the same message id are ignored.
func (r *Repository) RecordChatMessage(ctx context.Context, msg models.ChatMessage) error {
	if err := r.queries.InsertChatMessage(ctx, InsertChatMessageParams{
		ID:       msg.ID,
		RoomID:   msg.RoomID,
		SenderID: msg.SenderID,
		Content:  msg.Content,
		SentAt:   msg.SentAt,
	}); err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// ListGameResults returns the finished games of a room, newest first
func (r *Repository) ListGameResults(ctx context.Context, roomID string) ([]models.GameResult, error) {
	rows, err := r.queries.ListGameResults(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list game results: %w", err)
	}

	results := make([]models.GameResult, len(rows))
	for i, row := range rows {
		result, err := dbGameResultToModel(row)
		if err != nil {
			return nil, err
		}
		results[i] = result
	}
	return results, nil
}

func dbRoomToModel(row RoomRow, players []RoomPlayerRow) *models.Room {
	room := &models.Room{
		ID:          row.ID,
		CreatorID:   row.CreatorID,
		Status:      models.RoomStatus(row.Status),
		TotalRounds: int(row.TotalRounds),
		Categories:  row.Categories,
		Players:     make([]models.RoomPlayer, len(players)),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	for i, p := range players {
		room.Players[i] = models.RoomPlayer{
			ID:          p.PlayerID,
			DisplayName: sqlutil.FromSqlString(p.DisplayName, p.PlayerID),
			JoinedAt:    p.JoinedAt,
		}
	}
	return room
}

func dbGameResultToModel(row GameResultRow) (models.GameResult, error) {
	result := models.GameResult{
		ID:          row.ID,
		RoomID:      row.RoomID,
		FinalScores: map[string]int{},
		FinishedAt:  row.FinishedAt,
	}
	if err := sqlutil.FromNullJSON(row.FinalScores, &result.FinalScores); err != nil {
		return models.GameResult{}, err
	}
	return result, nil
}
