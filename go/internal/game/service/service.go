package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/mcdev12/drawguess/go/internal/game/orchestrator"
	"github.com/mcdev12/drawguess/go/internal/models"
	"github.com/rs/zerolog/log"
)

// GameApp defines what the service layer needs from the orchestrator
type GameApp interface {
	StartGame(ctx context.Context, roomID, requesterID string) error
	EndGame(ctx context.Context, roomID, requesterID string) error
	Snapshot(roomID string) (orchestrator.PublicState, error)
}

// HistoryStore lists the finished games of a room
type HistoryStore interface {
	ListGameResults(ctx context.Context, roomID string) ([]models.GameResult, error)
}

type StartGameRequest struct {
	RoomID      string `json:"room_id"`
	RequesterID string `json:"requester_id"`
}

type StartGameResponse struct {
	State orchestrator.PublicState `json:"state"`
}

type EndGameRequest struct {
	RoomID      string `json:"room_id"`
	RequesterID string `json:"requester_id"`
}

type EndGameResponse struct{}

type GetRoomStateRequest struct {
	RoomID string `json:"room_id"`
}

type GetRoomStateResponse struct {
	State orchestrator.PublicState `json:"state"`
}

type ListGameResultsRequest struct {
	RoomID string `json:"room_id"`
}

type ListGameResultsResponse struct {
	Results []models.GameResult `json:"results"`
}

// Service implements the GameService RPC interface
type Service struct {
	app     GameApp
	history HistoryStore
}

// NewService creates a new game control service. history may be nil.
func NewService(app GameApp, history HistoryStore) *Service {
	return &Service{
		app:     app,
		history: history,
	}
}

// StartGame starts the game of a waiting room on behalf of its host
func (s *Service) StartGame(ctx context.Context, req *connect.Request[StartGameRequest]) (*connect.Response[StartGameResponse], error) {
	if err := s.app.StartGame(ctx, req.Msg.RoomID, req.Msg.RequesterID); err != nil {
		return nil, toConnectError(err)
	}

	state, err := s.app.Snapshot(req.Msg.RoomID)
	if err != nil {
		// A two-player game can already be over if a player left right away.
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&StartGameResponse{State: state}), nil
}

// EndGame stops the running game of a room on behalf of its host
func (s *Service) EndGame(ctx context.Context, req *connect.Request[EndGameRequest]) (*connect.Response[EndGameResponse], error) {
	if err := s.app.EndGame(ctx, req.Msg.RoomID, req.Msg.RequesterID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&EndGameResponse{}), nil
}

// GetRoomState returns the public state of the game running in a room
func (s *Service) GetRoomState(ctx context.Context, req *connect.Request[GetRoomStateRequest]) (*connect.Response[GetRoomStateResponse], error) {
	state, err := s.app.Snapshot(req.Msg.RoomID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetRoomStateResponse{State: state}), nil
}

// ListGameResults returns the finished games of a room, newest first
func (s *Service) ListGameResults(ctx context.Context, req *connect.Request[ListGameResultsRequest]) (*connect.Response[ListGameResultsResponse], error) {
	if s.history == nil {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("game history is not configured"))
	}
	if req.Msg.RoomID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, orchestrator.ErrInvalidID)
	}

	results, err := s.history.ListGameResults(ctx, req.Msg.RoomID)
	if err != nil {
		return nil, toConnectError(err)
	}
	if results == nil {
		results = []models.GameResult{}
	}
	return connect.NewResponse(&ListGameResultsResponse{Results: results}), nil
}

// toConnectError maps orchestrator errors onto connect codes
func toConnectError(err error) *connect.Error {
	switch {
	case errors.Is(err, orchestrator.ErrGameNotRunning),
		errors.Is(err, orchestrator.ErrWrongPhase),
		errors.Is(err, orchestrator.ErrRoomNotWaiting),
		errors.Is(err, orchestrator.ErrNotEnoughPlayers):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	}

	switch orchestrator.KindOf(err) {
	case orchestrator.KindValidation:
		return connect.NewError(connect.CodeInvalidArgument, err)
	case orchestrator.KindAuthorization:
		return connect.NewError(connect.CodePermissionDenied, err)
	case orchestrator.KindNotFound:
		return connect.NewError(connect.CodeNotFound, err)
	case orchestrator.KindConflict:
		return connect.NewError(connect.CodeAlreadyExists, err)
	}

	log.Error().Err(err).Msg("game service request failed")
	return connect.NewError(connect.CodeInternal, errors.New("internal error"))
}
