package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/drawguess/go/internal/dbconfig"
	"github.com/mcdev12/drawguess/go/internal/game/eventbus"
	"github.com/mcdev12/drawguess/go/internal/game/gateway"
	"github.com/mcdev12/drawguess/go/internal/game/health"
	"github.com/mcdev12/drawguess/go/internal/game/orchestrator"
	"github.com/mcdev12/drawguess/go/internal/game/presence"
	"github.com/mcdev12/drawguess/go/internal/game/repository"
	"github.com/mcdev12/drawguess/go/internal/game/runtime"
	"github.com/mcdev12/drawguess/go/internal/game/service"
	"github.com/mcdev12/drawguess/go/internal/game/timer"
	"github.com/mcdev12/drawguess/go/internal/game/words"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Connect to database
	dbCfg := dbconfig.NewConfigFromEnv()
	db, err := dbCfg.Open(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	repo := repository.NewRepository(db)
	if cfg.Migrate {
		if err := repo.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		log.Info().Msg("database schema applied")
	}

	supply := setupWordSupply(db, cfg.WordsFile)

	// Background writer for every durable write of the game path
	writer := repository.NewWriter(cfg.Writer)
	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()
	go writer.Start(writerCtx)

	// Gateway is the broadcaster of the session core
	gatewayService := gateway.NewService(gateway.DefaultConnectionConfig(), presence.NewRegistry())
	cm := gatewayService.ConnectionManager()

	clock := clockwork.NewRealClock()
	roundTimer := timer.New(clock, cm)

	sources := health.Sources{
		DB:     db,
		Writer: writer,
		Connections: func() (int, int) {
			stats := cm.GetConnectionStats()
			return stats.TotalConnections, stats.BoundConnections
		},
	}

	opts := []orchestrator.Option{orchestrator.WithClock(clock)}
	if cfg.NatsURL != "" {
		publisher, err := eventbus.NewJetStreamPublisher(cfg.EventBus)
		if err != nil {
			log.Fatal().Err(err).Str("nats_url", cfg.NatsURL).Msg("failed to create JetStream publisher")
		}
		defer publisher.Close()
		opts = append(opts, orchestrator.WithPublisher(publisher))
		sources.Bus = publisher
	}

	rooms := runtime.NewRegistry()
	sources.ActiveGames = rooms.Len

	orch := orchestrator.New(cfg.Game, rooms, roundTimer, cm, repo, writer, supply, opts...)
	roundTimer.OnComplete(orch.OnTimerCompleted)
	writer.OnFailure(orch.PersistenceFailed)
	cm.SetHandler(orch)

	gatewayCtx, stopGateway := context.WithCancel(context.Background())
	defer stopGateway()
	go gatewayService.Start(gatewayCtx)

	checker := health.NewChecker(sources, cfg.Writer.MaxBacklog/10)
	server := setupServer(cfg.Port, gatewayService, service.NewService(orch, repo), checker)

	log.Info().
		Str("database", dbCfg.Database).
		Str("nats_url", cfg.NatsURL).
		Str("port", cfg.Port).
		Int("drawing_seconds", cfg.Game.DrawingSeconds).
		Msg("starting drawguess server")

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	orch.Shutdown()
	writer.Close()
	stopGateway()

	log.Info().Msg("drawguess server shutdown complete")
}

// setupWordSupply prefers the words table and falls back to the YAML file.
func setupWordSupply(db *sql.DB, path string) words.Supply {
	chain := words.Chain{words.NewPostgresSupply(db)}
	if path == "" {
		return chain
	}

	file, err := words.LoadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not load words file, using the database only")
		return chain
	}
	log.Info().Str("path", path).Strs("categories", file.Categories()).Msg("loaded words file")
	return append(chain, file)
}
