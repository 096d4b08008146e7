package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/drawguess/go/internal/game/events"
	"github.com/mcdev12/drawguess/go/internal/game/presence"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections grouped by room. It is the
// Broadcaster of the session core: events are queued on one channel and fanned
// out by a single goroutine, so enqueueing never blocks game state.
type ConnectionManager struct {
	// Connection pools organized by room ID
	roomConnections map[string]map[*Connection]bool
	connections     map[string]*Connection
	mu              sync.RWMutex

	presence *presence.Registry
	handler  GameHandler

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	RoomID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	CommandTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	BroadcastBuffer int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is one queued delivery. Exactly one of the targets applies:
// ConnectionID, then PlayerID, then the whole room.
type BroadcastMessage struct {
	RoomID       string
	Event        *events.GameEvent
	PlayerID     string
	ConnectionID string
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		CommandTimeout:  5 * time.Second,
		MaxMessageSize:  64 * 1024, // strokes can be large
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1000,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, registry *presence.Registry) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		connections:     make(map[string]*Connection),
		presence:        registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// SetHandler installs the game logic that client commands are routed to.
func (cm *ConnectionManager) SetHandler(h GameHandler) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.handler = h
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and joins it to
// the room group. The connection acts for no player until it sends JoinRoom.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, roomID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := cm.newConnection(roomID, conn)
	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("room_id", roomID).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) newConnection(roomID string, conn *websocket.Conn) *Connection {
	return &Connection{
		ID:          uuid.New().String(),
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}
}

// registerConnection adds a connection to its room group
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true
	cm.connections[conn.ID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID).
		Int("total_connections", len(cm.roomConnections[conn.RoomID])).
		Msg("connection registered")
}

// unregisterConnection removes a connection and its player binding. The
// player stays seated in the game so a reconnect can resume play; the room
// hears PlayerDisconnected once the player's last connection here is gone.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.roomConnections[conn.RoomID]
	if !exists {
		cm.mu.Unlock()
		return
	}
	if _, exists := connections[conn]; !exists {
		cm.mu.Unlock()
		return
	}
	delete(connections, conn)
	delete(cm.connections, conn.ID)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.roomConnections, conn.RoomID)
	}

	playerID, wasBound := cm.presence.Unbind(conn.ID)
	gone := wasBound && !cm.connectedInRoomLocked(conn.RoomID, playerID)
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", playerID).
		Str("room_id", conn.RoomID).
		Msg("connection unregistered")

	if !gone {
		return
	}
	event, err := events.New(conn.RoomID, events.EventTypePlayerDisconnected, events.PlayerDisconnectedPayload{PlayerID: playerID})
	if err != nil {
		log.Error().Err(err).Str("room_id", conn.RoomID).Msg("failed to build disconnect event")
		return
	}
	cm.BroadcastToRoom(conn.RoomID, event)
}

// connectedInRoomLocked reports whether playerID still has a bound connection
// in roomID. The caller holds cm.mu.
func (cm *ConnectionManager) connectedInRoomLocked(roomID, playerID string) bool {
	if !cm.presence.IsBound(playerID) {
		return false
	}
	for _, id := range cm.presence.ConnectionsOf(playerID) {
		if c, ok := cm.connections[id]; ok && c.RoomID == roomID {
			return true
		}
	}
	return false
}

// BroadcastToRoom sends an event to every connection in a room
func (cm *ConnectionManager) BroadcastToRoom(roomID string, event *events.GameEvent) {
	cm.enqueue(BroadcastMessage{RoomID: roomID, Event: event})
}

// BroadcastToPlayer sends an event to the room connections currently bound to a player
func (cm *ConnectionManager) BroadcastToPlayer(roomID, playerID string, event *events.GameEvent) {
	cm.enqueue(BroadcastMessage{RoomID: roomID, Event: event, PlayerID: playerID})
}

// SendToConnection sends an event to one connection
func (cm *ConnectionManager) SendToConnection(roomID, connectionID string, event *events.GameEvent) {
	cm.enqueue(BroadcastMessage{RoomID: roomID, Event: event, ConnectionID: connectionID})
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) {
	select {
	case cm.broadcastCh <- message:
	default:
		log.Warn().
			Str("room_id", message.RoomID).
			Str("event_type", string(message.Event.Type)).
			Str("player_id", message.PlayerID).
			Msg("broadcast channel full, dropping message")
	}
}

// handleBroadcast resolves the targets of a message and delivers it. Sends
// happen under the read lock because unregisterConnection closes Send under
// the write lock.
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	// Marshal the event once
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	cm.mu.RLock()
	targets := cm.targetsLocked(message)
	var slow []*Connection
	for _, conn := range targets {
		select {
		case conn.Send <- eventData:
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		// Connection is slow/dead, close it
		log.Warn().
			Str("connection_id", conn.ID).
			Str("room_id", conn.RoomID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		if conn.Conn != nil {
			conn.Conn.Close()
		}
	}

	if len(targets) > 0 {
		log.Debug().
			Str("event_type", string(message.Event.Type)).
			Str("room_id", message.RoomID).
			Int("connections", len(targets)).
			Msg("event broadcasted")
	}
}

func (cm *ConnectionManager) targetsLocked(message BroadcastMessage) []*Connection {
	connections := cm.roomConnections[message.RoomID]
	var out []*Connection

	switch {
	case message.ConnectionID != "":
		if conn, ok := cm.connections[message.ConnectionID]; ok && connections[conn] {
			out = append(out, conn)
		}
	case message.PlayerID != "":
		for _, id := range cm.presence.ConnectionsOf(message.PlayerID) {
			if conn, ok := cm.connections[id]; ok && connections[conn] {
				out = append(out, conn)
			}
		}
	default:
		for conn := range connections {
			out = append(out, conn)
		}
	}
	return out
}

// ConnectionStats summarizes the live connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	BoundConnections int            `json:"bound_connections"`
	RoomConnections  map[string]int `json:"room_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveRooms:      len(cm.roomConnections),
		BoundConnections: cm.presence.Count(),
		RoomConnections:  make(map[string]int, len(cm.roomConnections)),
	}
	for roomID, connections := range cm.roomConnections {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[roomID] = len(connections)
	}
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump reads client commands until the connection closes
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
