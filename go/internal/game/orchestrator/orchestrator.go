package orchestrator

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/drawguess/go/internal/game/events"
	"github.com/mcdev12/drawguess/go/internal/game/runtime"
	"github.com/mcdev12/drawguess/go/internal/game/words"
	"github.com/mcdev12/drawguess/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Config holds the pacing and scoring parameters of a game.
type Config struct {
	WordSelectionSeconds int           `yaml:"word_selection_seconds"`
	DrawingSeconds       int           `yaml:"drawing_seconds"`
	RoundOverDelay       time.Duration `yaml:"round_over_delay"`
	WordChoiceCount      int           `yaml:"word_choice_count"`
	MinPlayers           int           `yaml:"min_players"`
	GuesserPoints        int           `yaml:"guesser_points"`
	PainterPoints        int           `yaml:"painter_points"`
	MaxChatLength        int           `yaml:"max_chat_length"`
	WordFetchTimeout     time.Duration `yaml:"word_fetch_timeout"`
}

func DefaultConfig() Config {
	return Config{
		WordSelectionSeconds: 15,
		DrawingSeconds:       80,
		RoundOverDelay:       5 * time.Second,
		WordChoiceCount:      4,
		MinPlayers:           2,
		GuesserPoints:        100,
		PainterPoints:        50,
		MaxChatLength:        500,
		WordFetchTimeout:     3 * time.Second,
	}
}

// Broadcaster delivers events to a whole room or to one player's connections.
type Broadcaster interface {
	BroadcastToRoom(roomID string, event *events.GameEvent)
	BroadcastToPlayer(roomID, playerID string, event *events.GameEvent)
}

// PersistenceGateway is the durable store behind the session core.
type PersistenceGateway interface {
	LoadRoom(ctx context.Context, roomID string) (*models.Room, error)
	UpdateRoomStatus(ctx context.Context, roomID string, status models.RoomStatus) error
	RecordFinalScores(ctx context.Context, result models.GameResult) error
	RecordChatMessage(ctx context.Context, msg models.ChatMessage) error
}

// Writer runs durable writes off the game path.
type Writer interface {
	Enqueue(roomID, operation string, fn func(ctx context.Context) error)
}

// EventPublisher forwards lifecycle events to the event bus.
type EventPublisher interface {
	Publish(ctx context.Context, event *events.GameEvent) error
}

// RoundTimer paces the phases of a room.
type RoundTimer interface {
	Start(roomID string, phase runtime.Phase, durationSeconds int) uint64
	Stop(roomID string) bool
	Remaining(roomID string) (int, bool)
	StopAll()
}

// Orchestrator drives every room through its rounds. All mutation of a room's
// ActiveGameState happens under that state's lock.
type Orchestrator struct {
	cfg         Config
	clock       clockwork.Clock
	rooms       *runtime.Registry
	timer       RoundTimer
	broadcaster Broadcaster
	store       PersistenceGateway
	writer      Writer
	words       words.Supply
	publisher   EventPublisher
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the real clock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// WithPublisher sends lifecycle events to an event bus.
func WithPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func New(
	cfg Config,
	rooms *runtime.Registry,
	timer RoundTimer,
	broadcaster Broadcaster,
	store PersistenceGateway,
	writer Writer,
	supply words.Supply,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		clock:       clockwork.NewRealClock(),
		rooms:       rooms,
		timer:       timer,
		broadcaster: broadcaster,
		store:       store,
		writer:      writer,
		words:       supply,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Snapshot returns the public state of the game running in a room.
func (o *Orchestrator) Snapshot(roomID string) (PublicState, error) {
	if err := validateID("room id", roomID); err != nil {
		return PublicState{}, err
	}
	state, err := o.runningState(roomID)
	if err != nil {
		return PublicState{}, err
	}
	defer state.Unlock()

	pub := o.publicStateLocked(state)
	return PublicState{
		RoomID:           state.RoomID,
		HostID:           state.HostID,
		Round:            pub.Round,
		TotalRounds:      pub.TotalRounds,
		PainterID:        pub.PainterID,
		Phase:            state.Phase,
		Scores:           pub.Scores,
		Players:          state.Players(),
		TimeRemainingSec: pub.TimeRemainingSec,
	}, nil
}

// PublicState is a word-free view of a running game.
type PublicState struct {
	RoomID           string               `json:"room_id"`
	HostID           string               `json:"host_id"`
	Round            int                  `json:"round"`
	TotalRounds      int                  `json:"total_rounds"`
	PainterID        string               `json:"painter_id,omitempty"`
	Phase            runtime.Phase        `json:"phase"`
	Scores           map[string]int       `json:"scores"`
	Players          []runtime.PlayerView `json:"players"`
	TimeRemainingSec *int                 `json:"time_remaining_sec,omitempty"`
}

// OnTimerCompleted is the RoundTimer completion callback. Completions from a
// superseded timer or for a finished game are dropped.
func (o *Orchestrator) OnTimerCompleted(roomID string, phase runtime.Phase, generation uint64) {
	state, ok := o.rooms.TryGet(roomID)
	if !ok {
		return
	}
	state.Lock()
	defer state.Unlock()

	if state.Ended() || state.TimerGeneration != generation || state.Phase != phase {
		log.Debug().
			Str("room_id", roomID).
			Str("phase", string(phase)).
			Uint64("generation", generation).
			Uint64("current_generation", state.TimerGeneration).
			Msg("ignoring stale timer completion")
		return
	}

	switch phase {
	case runtime.PhaseWaitingForPainterToChooseWord:
		word := ""
		if len(state.WordChoices) > 0 {
			word = state.WordChoices[0]
		} else {
			word = words.Fallback(1)[0]
		}
		log.Info().
			Str("room_id", roomID).
			Str("painter_id", state.CurrentPainterID).
			Int("round", state.CurrentRound).
			Msg("painter did not choose in time, auto-picking first choice")
		o.applyWordLocked(state, word)
	case runtime.PhaseDrawingAndGuessing:
		o.endRoundLocked(state, RoundEndTimeUp)
	}
}

// PersistenceFailed tells a room that a durable write failed while play goes on.
func (o *Orchestrator) PersistenceFailed(roomID, operation string, err error) {
	log.Warn().Err(err).Str("room_id", roomID).Str("operation", operation).Msg("persistence failed, game continues")
	o.emit(roomID, events.EventTypePersistenceWarning, events.PersistenceWarningPayload{
		Operation: operation,
		Message:   "game progress could not be saved yet; play continues and saving will be retried",
	})
}

// Shutdown stops every timer and pending round of every room. Interrupted
// games put their room back to waiting so it can be played after a restart;
// the writer must be closed after this to flush those writes.
func (o *Orchestrator) Shutdown() {
	interrupted := 0
	for _, roomID := range o.rooms.RoomIDs() {
		state, ok := o.rooms.TryGet(roomID)
		if !ok {
			continue
		}
		state.Lock()
		if !state.Ended() {
			state.MarkEnded()
			interrupted++
			o.writer.Enqueue(roomID, "update_room_status", func(ctx context.Context) error {
				return o.store.UpdateRoomStatus(ctx, roomID, models.RoomStatusWaiting)
			})
		}
		state.Unlock()
		o.rooms.RemoveIfSame(roomID, state)
	}
	o.timer.StopAll()
	log.Info().Int("interrupted_games", interrupted).Msg("orchestrator shut down")
}

// runningState returns the room's state locked, or ErrGameNotRunning.
func (o *Orchestrator) runningState(roomID string) (*runtime.ActiveGameState, error) {
	state, ok := o.rooms.TryGet(roomID)
	if !ok {
		return nil, ErrGameNotRunning
	}
	state.Lock()
	if state.Ended() {
		state.Unlock()
		return nil, ErrGameNotRunning
	}
	return state, nil
}

func (o *Orchestrator) publicStateLocked(state *runtime.ActiveGameState) events.GameStatePayload {
	guessed := make([]string, len(state.CorrectGuessers))
	copy(guessed, state.CorrectGuessers)

	payload := events.GameStatePayload{
		Round:            state.CurrentRound,
		TotalRounds:      state.TotalRounds,
		PainterID:        state.CurrentPainterID,
		Phase:            string(state.Phase),
		Scores:           state.ScoresSnapshot(),
		GuessedPlayerIDs: guessed,
	}
	if remaining, ok := o.timer.Remaining(state.RoomID); ok {
		payload.TimeRemainingSec = &remaining
	}
	return payload
}

func (o *Orchestrator) broadcastStateLocked(state *runtime.ActiveGameState) {
	o.emit(state.RoomID, events.EventTypeGameStateUpdated, o.publicStateLocked(state))
}

// emit sends an event to the whole room and forwards lifecycle events to the bus.
func (o *Orchestrator) emit(roomID string, eventType events.EventType, payload interface{}) {
	event, err := events.New(roomID, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	o.broadcaster.BroadcastToRoom(roomID, event)

	if o.publisher != nil && eventType.IsLifecycle() {
		o.writer.Enqueue(roomID, "publish_"+string(eventType), func(ctx context.Context) error {
			return o.publisher.Publish(ctx, event)
		})
	}
}

// emitTo sends an event to the connections bound to one player.
func (o *Orchestrator) emitTo(roomID, playerID string, eventType events.EventType, payload interface{}) {
	event, err := events.New(roomID, eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	o.broadcaster.BroadcastToPlayer(roomID, playerID, event)
}

// drawWords fetches candidate words outside any room lock, falling back to
// the default set when the supply fails or has nothing for the categories.
func (o *Orchestrator) drawWords(ctx context.Context, roomID string, categories []string) []string {
	count := o.cfg.WordChoiceCount
	if o.words != nil {
		if o.cfg.WordFetchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.cfg.WordFetchTimeout)
			defer cancel()
		}

		got, err := o.words.GetRandomWords(ctx, categories, count)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("room_id", roomID).Strs("categories", categories).Msg("word supply failed, using default words")
		default:
			if got = words.Clean(got); len(got) > 0 {
				if len(got) > count {
					got = got[:count]
				}
				return got
			}
			log.Warn().Str("room_id", roomID).Strs("categories", categories).Msg("no words for categories, using default words")
		}
	}
	return words.Fallback(count)
}
