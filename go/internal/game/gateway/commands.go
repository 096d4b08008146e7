package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mcdev12/drawguess/go/internal/game/events"
	"github.com/mcdev12/drawguess/go/internal/game/orchestrator"
	"github.com/rs/zerolog/log"
)

// GameHandler is the game logic behind the client commands.
type GameHandler interface {
	JoinRoom(ctx context.Context, roomID, playerID, displayName string) error
	LeaveRoom(ctx context.Context, roomID, playerID string) error
	StartGame(ctx context.Context, roomID, requesterID string) error
	EndGame(ctx context.Context, roomID, requesterID string) error
	ChooseWord(ctx context.Context, roomID, word, callerID string) error
	HandleGuess(ctx context.Context, roomID, playerID, text string) (orchestrator.GuessResult, error)
	RelayStroke(ctx context.Context, roomID, playerID string, payload json.RawMessage) error
	SendChat(ctx context.Context, roomID, playerID, text string) error
	Undo(ctx context.Context, roomID, playerID string) error
	Redo(ctx context.Context, roomID, playerID string) error
	ClearCanvas(ctx context.Context, roomID, playerID string) error
}

// CommandType names a client to server command
type CommandType string

const (
	CommandJoinRoom             CommandType = "JoinRoom"
	CommandLeaveRoom            CommandType = "LeaveRoom"
	CommandStartGame            CommandType = "StartGame"
	CommandEndGame              CommandType = "EndGame"
	CommandConfirmWordSelection CommandType = "ConfirmWordSelection"
	CommandSendGuess            CommandType = "SendGuess"
	CommandSendStroke           CommandType = "SendStroke"
	CommandSendChat             CommandType = "SendChat"
	CommandUndo                 CommandType = "Undo"
	CommandRedo                 CommandType = "Redo"
	CommandClearCanvas          CommandType = "ClearCanvas"
)

// ClientMessage is the envelope of every client command
type ClientMessage struct {
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinRoomCommand struct {
	PlayerID    string `json:"player_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type ConfirmWordSelectionCommand struct {
	Word string `json:"word"`
}

type SendGuessCommand struct {
	Text string `json:"text"`
}

type SendStrokeCommand struct {
	Payload json.RawMessage `json:"payload"`
}

type SendChatCommand struct {
	Text string `json:"text"`
}

var (
	errMalformedCommand = errors.New("malformed command")
	errUnknownCommand   = errors.New("unknown command")
	errNotJoined        = errors.New("send JoinRoom before other commands")
	errNoHandler        = errors.New("game handler not available")
)

// handleClientMessage decodes a command, resolves the acting player through
// the presence registry and routes it to the game handler. Failures go back to
// this connection only, as CommandRejected.
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.reject("", errMalformedCommand)
		return
	}

	cm := c.Manager
	cm.mu.RLock()
	handler := cm.handler
	cm.mu.RUnlock()
	if handler == nil {
		c.reject(msg.Type, errNoHandler)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cm.config.CommandTimeout)
	defer cancel()

	if msg.Type == CommandJoinRoom {
		c.join(ctx, handler, msg.Data)
		return
	}

	playerID, bound := cm.presence.PlayerOf(c.ID)
	if !bound {
		c.reject(msg.Type, errNotJoined)
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("player_id", playerID).
		Str("room_id", c.RoomID).
		Str("command", string(msg.Type)).
		Msg("received client command")

	var err error
	switch msg.Type {
	case CommandLeaveRoom:
		err = handler.LeaveRoom(ctx, c.RoomID, playerID)
		cm.presence.Unbind(c.ID)
	case CommandStartGame:
		err = handler.StartGame(ctx, c.RoomID, playerID)
	case CommandEndGame:
		err = handler.EndGame(ctx, c.RoomID, playerID)
	case CommandConfirmWordSelection:
		var cmd ConfirmWordSelectionCommand
		if err = decode(msg.Data, &cmd); err == nil {
			err = handler.ChooseWord(ctx, c.RoomID, cmd.Word, playerID)
		}
	case CommandSendGuess:
		var cmd SendGuessCommand
		if err = decode(msg.Data, &cmd); err == nil {
			_, err = handler.HandleGuess(ctx, c.RoomID, playerID, cmd.Text)
		}
	case CommandSendStroke:
		var cmd SendStrokeCommand
		if err = decode(msg.Data, &cmd); err == nil {
			err = handler.RelayStroke(ctx, c.RoomID, playerID, cmd.Payload)
		}
	case CommandSendChat:
		var cmd SendChatCommand
		if err = decode(msg.Data, &cmd); err == nil {
			err = handler.SendChat(ctx, c.RoomID, playerID, cmd.Text)
		}
	case CommandUndo:
		err = handler.Undo(ctx, c.RoomID, playerID)
	case CommandRedo:
		err = handler.Redo(ctx, c.RoomID, playerID)
	case CommandClearCanvas:
		err = handler.ClearCanvas(ctx, c.RoomID, playerID)
	default:
		err = errUnknownCommand
	}
	if err != nil {
		c.reject(msg.Type, err)
	}
}

// join binds the connection before the game handler runs, so the private
// snapshot sent by JoinRoom reaches this connection.
func (c *Connection) join(ctx context.Context, handler GameHandler, data json.RawMessage) {
	var cmd JoinRoomCommand
	if err := decode(data, &cmd); err != nil {
		c.reject(CommandJoinRoom, err)
		return
	}

	cm := c.Manager
	previous, wasBound := cm.presence.PlayerOf(c.ID)
	cm.presence.Bind(c.ID, cmd.PlayerID)

	if err := handler.JoinRoom(ctx, c.RoomID, cmd.PlayerID, cmd.DisplayName); err != nil {
		if wasBound {
			cm.presence.Bind(c.ID, previous)
		} else {
			cm.presence.Unbind(c.ID)
		}
		c.reject(CommandJoinRoom, err)
		return
	}

	log.Info().
		Str("connection_id", c.ID).
		Str("player_id", cmd.PlayerID).
		Str("room_id", c.RoomID).
		Msg("connection bound to player")
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errMalformedCommand
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errMalformedCommand
	}
	return nil
}

// rejectionCode maps an error to the code carried by CommandRejected
func rejectionCode(err error) string {
	switch {
	case errors.Is(err, errMalformedCommand), errors.Is(err, errUnknownCommand):
		return string(orchestrator.KindValidation)
	case errors.Is(err, errNotJoined):
		return string(orchestrator.KindAuthorization)
	}
	return string(orchestrator.KindOf(err))
}

func (c *Connection) reject(command CommandType, err error) {
	code := rejectionCode(err)
	message := err.Error()
	if code == string(orchestrator.KindInternal) {
		log.Error().Err(err).Str("connection_id", c.ID).Str("command", string(command)).Msg("command failed")
		message = "internal error"
	} else {
		log.Debug().Err(err).Str("connection_id", c.ID).Str("command", string(command)).Msg("command rejected")
	}

	event, buildErr := events.New(c.RoomID, events.EventTypeCommandRejected, events.CommandRejectedPayload{
		Command: string(command),
		Code:    code,
		Message: message,
	})
	if buildErr != nil {
		log.Error().Err(buildErr).Msg("failed to build rejection event")
		return
	}
	c.Manager.SendToConnection(c.RoomID, c.ID, event)
}
