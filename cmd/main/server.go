package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/CTAG07/babbler/pkg/markov"
)

// requestIDHeader echoes the id assigned to each request.
const requestIDHeader = "X-Request-ID"

// Server wires the model, the model store and the API handlers together.
type Server struct {
	config    *ConfigManager
	db        *sql.DB
	logger    *slog.Logger
	chain     *markov.Chain
	store     *markov.Store
	authAPI   *AuthAPI
	markovAPI *MarkovAPI
	serverAPI *ServerAPI
	mux       *http.ServeMux
}

// NewServer creates a Server around an existing chain. The model store is
// prepared on db, which must already carry the model and auth schemas.
func NewServer(config *ConfigManager, logger *slog.Logger, db *sql.DB, chain *markov.Chain, actionChan chan string) (*Server, error) {
	store, err := markov.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare model store: %w", err)
	}
	store.SetLogger(logger)

	server := &Server{
		config:    config,
		db:        db,
		logger:    logger,
		chain:     chain,
		store:     store,
		authAPI:   NewAuthAPI(db, logger),
		markovAPI: NewMarkovAPI(chain, store, config, logger),
		serverAPI: NewServerAPI(config, chain, actionChan, logger),
		mux:       http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	server.authAPI.RegisterRoutes(apiMux)
	server.markovAPI.RegisterRoutes(apiMux)
	server.serverAPI.RegisterRoutes(apiMux)

	// Everything under /api/ except the health check passes through authentication first.
	server.mux.HandleFunc("/api/health", server.serverAPI.handleHealth)
	server.mux.Handle("/api/", server.authAPI.Authenticate(apiMux))

	return server, nil
}

// Handler returns the root handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// SetModelPath makes the API write changed models to path instead of the
// configured server.model_path.
func (s *Server) SetModelPath(path string) {
	s.markovAPI.modelPath = path
}

// Close releases the prepared statements of the model store.
func (s *Server) Close() {
	s.store.Close()
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logRequests tags every request with an id and logs its outcome.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelDebug
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "Request handled",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_addr", r.RemoteAddr),
		)
	})
}
