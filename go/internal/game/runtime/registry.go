package runtime

import (
	"sort"
	"sync"
)

// Registry maps room ids to the state of their running game.
type Registry struct {
	states map[string]*ActiveGameState
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		states: make(map[string]*ActiveGameState),
	}
}

// TryGet returns the state for a room if a game is running there.
func (r *Registry) TryGet(roomID string) (*ActiveGameState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[roomID]
	return state, ok
}

// GetOrCreate returns the existing state for a room or stores the one built by
// factory. The factory runs under the registry lock, so it runs at most once per
// creation and must not block. created is true only for the caller whose factory
// produced the stored state.
func (r *Registry) GetOrCreate(roomID string, factory func() *ActiveGameState) (state *ActiveGameState, created bool) {
	r.mu.RLock()
	state, ok := r.states[roomID]
	r.mu.RUnlock()
	if ok {
		return state, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.states[roomID]; ok {
		return state, false
	}
	state = factory()
	r.states[roomID] = state
	return state, true
}

// Remove deletes the state for a room. It reports whether one was present.
func (r *Registry) Remove(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[roomID]; !ok {
		return false
	}
	delete(r.states, roomID)
	return true
}

// RemoveIfSame deletes the entry only while it still points at state, so a
// finished game never evicts a newer game for the same room.
func (r *Registry) RemoveIfSame(roomID string, state *ActiveGameState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.states[roomID]; !ok || current != state {
		return false
	}
	delete(r.states, roomID)
	return true
}

// Len returns the number of running games.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}

// RoomIDs returns the ids of rooms with a running game, sorted.
func (r *Registry) RoomIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
