package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/drawguess/go/internal/game/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConfig names the stream game events land on and how long they stay.
type JetStreamConfig struct {
	URL           string        `yaml:"url"`
	StreamName    string        `yaml:"stream_name"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	Retention     time.Duration `yaml:"retention"`
	MaxEvents     int64         `yaml:"max_events"`
	Replicas      int           `yaml:"replicas"`
	DedupWindow   time.Duration `yaml:"dedup_window"`
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "GAME_EVENTS",
		SubjectPrefix: "game.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Retention:     72 * time.Hour,
		MaxEvents:     -1,
		Replicas:      1,
		DedupWindow:   2 * time.Hour,
	}
}

// JetStreamPublisher forwards game lifecycle events to a JetStream stream.
// The event id is the message id, so a retried publish is de-duplicated.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("drawguess-server"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Str("stream", cfg.StreamName).Msg("event bus connection lost")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("event bus connection restored")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("event bus error")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event bus at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open jetstream: %w", err)
	}

	p := newPublisher(js, cfg)
	p.nc = nc

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func newPublisher(js jetstream.JetStream, cfg JetStreamConfig) *JetStreamPublisher {
	return &JetStreamPublisher{js: js, config: cfg}
}

// ensureStream declares the stream, reconciling an existing one with cfg.
func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	stream, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Game lifecycle events",
		Subjects:    []string{p.config.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      p.config.Retention,
		MaxMsgs:     p.config.MaxEvents,
		Replicas:    p.config.Replicas,
		Duplicates:  p.config.DedupWindow,
	})
	if err != nil {
		return fmt.Errorf("failed to declare stream %s: %w", p.config.StreamName, err)
	}

	log.Info().
		Str("stream", stream.CachedInfo().Config.Name).
		Strs("subjects", stream.CachedInfo().Config.Subjects).
		Msg("event stream ready")
	return nil
}

// Subject returns the subject an event type is published on
func (p *JetStreamPublisher) Subject(eventType events.EventType) string {
	return fmt.Sprintf("%s.%s", p.config.SubjectPrefix, eventType)
}

// Publish sends one event, waiting for the stream acknowledgement.
func (p *JetStreamPublisher) Publish(ctx context.Context, event *events.GameEvent) error {
	subject := p.Subject(event.Type)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Event-Type", string(event.Type))
	msg.Header.Set("Room-ID", event.RoomID)
	msg.Header.Set("Event-ID", event.ID)

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(event.ID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s for room %s: %w", event.Type, event.RoomID, err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", event.ID).
		Str("room_id", event.RoomID).
		Uint64("seq", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("event published")

	return nil
}

// Connected reports whether the NATS connection is up.
func (p *JetStreamPublisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
			return fmt.Errorf("failed to drain event bus connection: %w", err)
		}
	}
	return nil
}
