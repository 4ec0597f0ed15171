package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/eigerco/blocksim/internal/pipeline"
	"github.com/eigerco/blocksim/internal/validation"
	"github.com/eigerco/blocksim/pkg/log"
)

type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// Server is the HTTP adapter in front of the validation service and the
// two pipelines.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration

	svc       *validation.Service
	submitter *pipeline.Submitter
	deployer  *pipeline.Deployer
}

// New wires the routes. Metrics are served from gatherer.
func New(
	cfg Config,
	svc *validation.Service,
	submitter *pipeline.Submitter,
	deployer *pipeline.Deployer,
	gatherer prometheus.Gatherer,
) *Server {
	s := &Server{
		shutdownTimeout: cfg.ShutdownTimeout,
		svc:             svc,
		submitter:       submitter,
		deployer:        deployer,
	}

	router := mux.NewRouter()
	s.registerRoutes(router, gatherer)

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(router)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) registerRoutes(router *mux.Router, gatherer prometheus.Gatherer) {
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api/chain").Subrouter()
	api.HandleFunc("/stake", s.handleStake).Methods(http.MethodPost)
	api.HandleFunc("/deploy_firmware", s.handleDeployFirmware).Methods(http.MethodPost)
	api.HandleFunc("/submit", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{wallet_id}", s.handleWallet).Methods(http.MethodGet)
	api.HandleFunc("/blocks/latest", s.handleLatestBlock).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		log.Server.Info().Str("addr", s.httpServer.Addr).Msg("server starting")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Server.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		log.Server.Info().Msg("server shut down gracefully")
		return nil
	case err := <-errChan:
		return err
	}
}
