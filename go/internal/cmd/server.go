package main

import (
	"fmt"
	"net/http"

	"connectrpc.com/grpcreflect"
	"github.com/mcdev12/quizclock/go/internal/config"
	"github.com/mcdev12/quizclock/go/internal/quiz/rpc"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
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

	// Register services
	registerServices(mux, services)

	// Setup reflection for grpcui/grpcurl
	setupReflection(mux)

	// Add health check endpoint
	setupHealthCheck(mux)

	// Wrap with CORS
	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Register round RPC service
	roundServicePath, roundServiceHandler := rpc.NewRoundServiceHandler(services.RPC)
	mux.Handle(roundServicePath, roundServiceHandler)

	// WebSocket + REST state routes
	services.Gateway.RegisterRoutes(mux)

	// Readiness and metrics
	mux.Handle("/health/ready", services.Health)
	mux.Handle("/metrics", services.Health.MetricsHandler())
}

func setupReflection(mux *http.ServeMux) {
	reflector := grpcreflect.NewStaticReflector(
		rpc.RoundServiceName,
	)
	mux.Handle(grpcreflect.NewHandlerV1(reflector))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector))
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
