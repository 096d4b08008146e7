package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type Status struct {
	Healthy           bool     `json:"healthy"`
	DatabaseConnected bool     `json:"database_connected"`
	NATSConnected     bool     `json:"nats_connected"`
	NATSEnabled       bool     `json:"nats_enabled"`
	PendingWrites     int      `json:"pending_writes"`
	ActiveGames       int      `json:"active_games"`
	Connections       int      `json:"connections"`
	BoundConnections  int      `json:"bound_connections"`
	Errors            []string `json:"errors"`
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type BacklogReporter interface {
	BacklogLen() int
}

type ConnectionReporter interface {
	Connected() bool
}

// Sources are the parts of the server a check looks at. Nil fields are skipped.
type Sources struct {
	DB          Pinger
	Writer      BacklogReporter
	Bus         ConnectionReporter
	ActiveGames func() int
	Connections func() (total, bound int)
}

type Checker struct {
	sources          Sources
	backlogThreshold int
	timeout          time.Duration
}

func NewChecker(sources Sources, backlogThreshold int) *Checker {
	return &Checker{
		sources:          sources,
		backlogThreshold: backlogThreshold,
		timeout:          5 * time.Second,
	}
}

func (c *Checker) Check(ctx context.Context) Status {
	status := Status{
		Healthy: true,
		Errors:  []string{},
	}

	if c.sources.DB != nil {
		if err := c.sources.DB.PingContext(ctx); err != nil {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		} else {
			status.DatabaseConnected = true
		}
	}

	if c.sources.Bus != nil {
		status.NATSEnabled = true
		status.NATSConnected = c.sources.Bus.Connected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	if c.sources.Writer != nil {
		status.PendingWrites = c.sources.Writer.BacklogLen()
		// A growing backlog degrades durability, not play.
		if c.backlogThreshold > 0 && status.PendingWrites > c.backlogThreshold {
			status.Errors = append(status.Errors, fmt.Sprintf("high pending write count: %d", status.PendingWrites))
		}
	}

	if c.sources.ActiveGames != nil {
		status.ActiveGames = c.sources.ActiveGames()
	}
	if c.sources.Connections != nil {
		status.Connections, status.BoundConnections = c.sources.Connections()
	}

	return status
}

func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	status := c.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}

// MetricsHandler exports the same status in the Prometheus text format.
func (c *Checker) MetricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if _, err := fmt.Fprint(w, Export(c.Check(ctx))); err != nil {
			log.Error().Err(err).Msg("failed to write metrics response")
		}
	})
}

func Export(status Status) string {
	return fmt.Sprintf(`# HELP drawguess_healthy Whether the server is healthy
# TYPE drawguess_healthy gauge
drawguess_healthy %d

# HELP drawguess_database_connected Whether the database answers pings
# TYPE drawguess_database_connected gauge
drawguess_database_connected %d

# HELP drawguess_nats_connected Whether the event bus is connected
# TYPE drawguess_nats_connected gauge
drawguess_nats_connected %d

# HELP drawguess_pending_writes Failed writes waiting for a retry
# TYPE drawguess_pending_writes gauge
drawguess_pending_writes %d

# HELP drawguess_active_games Rooms with a game in progress
# TYPE drawguess_active_games gauge
drawguess_active_games %d

# HELP drawguess_connections Open WebSocket connections
# TYPE drawguess_connections gauge
drawguess_connections %d

# HELP drawguess_bound_connections Connections bound to a player
# TYPE drawguess_bound_connections gauge
drawguess_bound_connections %d
`,
		boolGauge(status.Healthy),
		boolGauge(status.DatabaseConnected),
		boolGauge(status.NATSConnected),
		status.PendingWrites,
		status.ActiveGames,
		status.Connections,
		status.BoundConnections,
	)
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
