package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/drawguess/go/internal/game/gateway"
	"github.com/mcdev12/drawguess/go/internal/game/health"
	"github.com/mcdev12/drawguess/go/internal/game/service"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(port string, gatewayService *gateway.Service, gameService *service.Service, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Register the control RPC service
	path, handler := service.NewGameServiceHandler(gameService)
	mux.Handle(path, handler)

	// Register gateway routes (WebSocket and stats)
	gatewayService.RegisterRoutes(mux)

	mux.Handle("/health", checker)
	mux.Handle("/metrics", checker.MetricsHandler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
