package runtime

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Phase is a step of the round state machine.
type Phase string

const (
	PhaseNotStarted                    Phase = "NotStarted"
	PhaseWaitingForPainterToChooseWord Phase = "WaitingForPainterToChooseWord"
	PhaseDrawingAndGuessing            Phase = "DrawingAndGuessing"
	PhaseRoundOver                     Phase = "RoundOver"
	PhaseGameOver                      Phase = "GameOver"
)

// Player is the runtime record of a seated player.
type Player struct {
	ID                  string
	DisplayName         string
	HasGuessedCorrectly bool
}

// PlayerView is a read-only copy of a player with derived fields.
type PlayerView struct {
	ID                  string `json:"id"`
	DisplayName         string `json:"display_name"`
	Score               int    `json:"score"`
	HasGuessedCorrectly bool   `json:"has_guessed_correctly"`
	IsPainter           bool   `json:"is_painter"`
}

// ActiveGameState is the per-room runtime record of a running game.
// Callers must hold the state lock for every read and write of its fields.
type ActiveGameState struct {
	mu sync.Mutex

	RoomID      string
	HostID      string
	Categories  []string
	TotalRounds int

	CurrentRound      int
	CurrentPainterID  string
	CurrentTargetWord string
	Phase             Phase
	WordChoices       []string
	Scores            map[string]int

	// CorrectGuessers holds this round's correct guessers in the order they guessed.
	CorrectGuessers []string
	RoundStartedAt  time.Time

	// TimerGeneration identifies the round timer that currently paces this state.
	TimerGeneration uint64
	// NextRound is the pending delayed StartRound, if any.
	NextRound clockwork.Timer

	players       []*Player
	painterCursor int
	ended         bool
}

// NewActiveGameState creates a state in PhaseNotStarted with round 0.
func NewActiveGameState(roomID, hostID string, totalRounds int, categories []string) *ActiveGameState {
	cats := make([]string, len(categories))
	copy(cats, categories)
	return &ActiveGameState{
		RoomID:        roomID,
		HostID:        hostID,
		Categories:    cats,
		TotalRounds:   totalRounds,
		Phase:         PhaseNotStarted,
		Scores:        make(map[string]int),
		players:       make([]*Player, 0, 8),
		painterCursor: -1,
	}
}

func (s *ActiveGameState) Lock()   { s.mu.Lock() }
func (s *ActiveGameState) Unlock() { s.mu.Unlock() }

// Ended reports whether the game reached GameOver or was torn down.
func (s *ActiveGameState) Ended() bool { return s.ended }

// MarkEnded makes every later timer completion or scheduled callback a no-op.
func (s *ActiveGameState) MarkEnded() {
	s.ended = true
	s.Phase = PhaseGameOver
	if s.NextRound != nil {
		s.NextRound.Stop()
		s.NextRound = nil
	}
}

// AddPlayer appends a player to the stable join order. It returns false if the
// player is already seated.
func (s *ActiveGameState) AddPlayer(id, displayName string) bool {
	if _, ok := s.Player(id); ok {
		return false
	}
	s.players = append(s.players, &Player{ID: id, DisplayName: displayName})
	if _, ok := s.Scores[id]; !ok {
		s.Scores[id] = 0
	}
	return true
}

// RemovePlayer drops a player from the join order, keeping the painter cursor
// pointed so that the rotation continues with the next player in order.
// The player's score is kept for the final results.
func (s *ActiveGameState) RemovePlayer(id string) bool {
	for i, p := range s.players {
		if p.ID != id {
			continue
		}
		s.players = append(s.players[:i], s.players[i+1:]...)
		if i <= s.painterCursor {
			s.painterCursor--
		}
		return true
	}
	return false
}

// Player looks up a seated player.
func (s *ActiveGameState) Player(id string) (*Player, bool) {
	for _, p := range s.players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// PlayerCount returns the number of seated players.
func (s *ActiveGameState) PlayerCount() int { return len(s.players) }

// PlayerIDs returns seated player ids in join order.
func (s *ActiveGameState) PlayerIDs() []string {
	ids := make([]string, len(s.players))
	for i, p := range s.players {
		ids[i] = p.ID
	}
	return ids
}

// Players returns views of every seated player in join order.
func (s *ActiveGameState) Players() []PlayerView {
	views := make([]PlayerView, len(s.players))
	for i, p := range s.players {
		views[i] = PlayerView{
			ID:                  p.ID,
			DisplayName:         p.DisplayName,
			Score:               s.Scores[p.ID],
			HasGuessedCorrectly: p.HasGuessedCorrectly,
			IsPainter:           p.ID == s.CurrentPainterID,
		}
	}
	return views
}

// AdvancePainter moves the rotation cursor one step in join order and returns
// the new painter id, or "" when nobody is seated.
func (s *ActiveGameState) AdvancePainter() string {
	if len(s.players) == 0 {
		return ""
	}
	s.painterCursor = (s.painterCursor + 1) % len(s.players)
	return s.players[s.painterCursor].ID
}

// ResetRound clears every round-scoped field before a new round starts.
func (s *ActiveGameState) ResetRound() {
	for _, p := range s.players {
		p.HasGuessedCorrectly = false
	}
	s.CurrentTargetWord = ""
	s.WordChoices = nil
	s.CorrectGuessers = nil
}

// MarkGuessedCorrectly flags a player for this round. It returns false if the
// player is unknown or already flagged.
func (s *ActiveGameState) MarkGuessedCorrectly(id string) bool {
	p, ok := s.Player(id)
	if !ok || p.HasGuessedCorrectly {
		return false
	}
	p.HasGuessedCorrectly = true
	s.CorrectGuessers = append(s.CorrectGuessers, id)
	return true
}

// AllGuessersCorrect reports whether every seated non-painter has guessed the
// word this round. It is false when there are no guessers.
func (s *ActiveGameState) AllGuessersCorrect() bool {
	guessers := 0
	for _, p := range s.players {
		if p.ID == s.CurrentPainterID {
			continue
		}
		guessers++
		if !p.HasGuessedCorrectly {
			return false
		}
	}
	return guessers > 0
}

// ScoresSnapshot returns a copy of the score map.
func (s *ActiveGameState) ScoresSnapshot() map[string]int {
	out := make(map[string]int, len(s.Scores))
	for k, v := range s.Scores {
		out[k] = v
	}
	return out
}
