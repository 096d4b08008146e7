package presence

import (
	"sort"
	"sync"
)

// Registry binds live connection ids to the player ids they act for.
// A connection belongs to exactly one player; a player may hold several
// connections (multiple tabs).
type Registry struct {
	playerByConn  map[string]string
	connsByPlayer map[string]map[string]struct{}
	mu            sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		playerByConn:  make(map[string]string),
		connsByPlayer: make(map[string]map[string]struct{}),
	}
}

// Bind associates connectionID with playerID. Binding the same pair twice is a
// no-op; binding a connection to a different player moves it.
func (r *Registry) Bind(connectionID, playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.playerByConn[connectionID]; ok {
		if prev == playerID {
			return
		}
		r.detachLocked(connectionID, prev)
	}

	r.playerByConn[connectionID] = playerID
	conns, ok := r.connsByPlayer[playerID]
	if !ok {
		conns = make(map[string]struct{})
		r.connsByPlayer[playerID] = conns
	}
	conns[connectionID] = struct{}{}
}

// Unbind removes the binding of connectionID and returns the player it was bound to.
func (r *Registry) Unbind(connectionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	playerID, ok := r.playerByConn[connectionID]
	if !ok {
		return "", false
	}
	r.detachLocked(connectionID, playerID)
	return playerID, true
}

func (r *Registry) detachLocked(connectionID, playerID string) {
	delete(r.playerByConn, connectionID)
	if conns, ok := r.connsByPlayer[playerID]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(r.connsByPlayer, playerID)
		}
	}
}

// PlayerOf returns the player bound to a connection.
func (r *Registry) PlayerOf(connectionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	playerID, ok := r.playerByConn[connectionID]
	return playerID, ok
}

// ConnectionsOf returns the connection ids currently bound to a player, sorted.
func (r *Registry) ConnectionsOf(playerID string) []string {
	r.mu.RLock()
	conns := r.connsByPlayer[playerID]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// IsBound reports whether any connection is bound to the player.
func (r *Registry) IsBound(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connsByPlayer[playerID]) > 0
}

// Count returns the number of bound connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.playerByConn)
}
