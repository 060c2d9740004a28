package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/CTAG07/babbler/pkg/markov"
)

// maxUploadBytes caps training corpora and imported models sent over HTTP.
const maxUploadBytes = 64 << 20

// MarkovAPI holds the dependencies for the model and generation handlers.
type MarkovAPI struct {
	chain     *markov.Chain
	store     *markov.Store
	config    *ConfigManager
	logger    *slog.Logger
	modelPath string // overrides server.model_path when set
}

// NewMarkovAPI creates a new instance of the MarkovAPI.
func NewMarkovAPI(chain *markov.Chain, store *markov.Store, config *ConfigManager, logger *slog.Logger) *MarkovAPI {
	return &MarkovAPI{
		chain:  chain,
		store:  store,
		config: config,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for generation and model endpoints.
func (m *MarkovAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/generate", m.handleGenerate)
	mux.HandleFunc("/api/model/train", m.handleTrain)
	mux.HandleFunc("/api/model/export", m.handleExport)
	mux.HandleFunc("/api/model/import", m.handleImport)
	mux.HandleFunc("/api/model/prune", m.handlePrune)
	mux.HandleFunc("/api/model/stats", m.handleStats)
	mux.HandleFunc("/api/models", m.handleListModels)
	mux.HandleFunc("/api/models/", m.handleModelByName)
}

// GenerateRequest is the JSON body accepted by POST /api/generate. The same
// fields are read from the query string on GET.
type GenerateRequest struct {
	Seed        string `json:"seed"`
	Words       int    `json:"words"`
	IncludeSeed *bool  `json:"include_seed"`
}

// GenerateResponse holds the generated text.
type GenerateResponse struct {
	Text string `json:"text"`
}

// PruneRequest is the JSON body accepted by POST /api/model/prune.
type PruneRequest struct {
	MinFrequency int `json:"min_frequency"`
}

func (m *MarkovAPI) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.Seed = q.Get("seed")
		if v := q.Get("words"); v != "" {
			words, err := strconv.Atoi(v)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, "Invalid 'words' parameter")
				return
			}
			req.Words = words
		}
		if v := q.Get("include_seed"); v != "" {
			include, err := strconv.ParseBool(v)
			if err != nil {
				respondWithError(w, http.StatusBadRequest, "Invalid 'include_seed' parameter")
				return
			}
			req.IncludeSeed = &include
		}
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !requireScope(w, r, scopeModelRead) {
		return
	}

	defaults := m.config.Get().Model
	if req.Words == 0 {
		req.Words = defaults.WordLimit
	}
	if req.Words < 1 {
		respondWithError(w, http.StatusBadRequest, "'words' must be positive")
		return
	}
	includeSeed := defaults.IncludeSeed
	if req.IncludeSeed != nil {
		includeSeed = *req.IncludeSeed
	}

	var (
		text string
		err  error
	)
	if req.Seed == "" {
		text, err = m.chain.GenerateRandom(r.Context(), markov.WithWordLimit(req.Words))
	} else {
		text, err = m.chain.GenerateSeeded(r.Context(), req.Seed,
			markov.WithWordLimit(req.Words), markov.WithIncludeSeed(includeSeed))
	}
	if err != nil {
		var matchErr *markov.ModelMatchError
		switch {
		case errors.As(err, &matchErr):
			respondWithJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": matchErr.Error(),
				"seed":  matchErr.Seed,
			})
		case errors.Is(err, markov.ErrEmptyModel):
			respondWithError(w, http.StatusServiceUnavailable, "No model is loaded")
		default:
			m.logger.ErrorContext(r.Context(), "Generation failed", "error", err)
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Generation failed: %v", err))
		}
		return
	}
	respondWithJSON(w, http.StatusOK, GenerateResponse{Text: text})
}

// handleTrain replaces the active model with one trained on the request body.
func (m *MarkovAPI) handleTrain(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) || !requireScope(w, r, scopeModelWrite) {
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := m.chain.Train(r.Context(), body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Training corpus too large")
			return
		}
		m.logger.ErrorContext(r.Context(), "Failed to train model", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Training failed: %v", err))
		return
	}
	m.persistModel(w, r)
}

// handleExport streams the active model in its persisted form.
func (m *MarkovAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !requireScope(w, r, scopeModelRead) {
		return
	}

	var buf bytes.Buffer
	if err := m.chain.Save(&buf); err != nil {
		if errors.Is(err, markov.ErrEmptyModel) {
			respondWithError(w, http.StatusServiceUnavailable, "No model is loaded")
			return
		}
		m.logger.ErrorContext(r.Context(), "Failed to export model", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Export failed: %v", err))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="babbler.model"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleImport installs a model uploaded in its persisted form.
func (m *MarkovAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) || !requireScope(w, r, scopeModelWrite) {
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := m.chain.Load(r.Context(), body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Model too large")
			return
		}
		m.logger.WarnContext(r.Context(), "Rejected model import", "error", err)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Import failed: %v", err))
		return
	}
	m.persistModel(w, r)
}

func (m *MarkovAPI) handlePrune(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) || !requireScope(w, r, scopeModelWrite) {
		return
	}

	var req PruneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if req.MinFrequency < 0 {
		respondWithError(w, http.StatusBadRequest, "'min_frequency' must not be negative")
		return
	}
	if err := m.chain.Prune(r.Context(), req.MinFrequency); err != nil {
		if errors.Is(err, markov.ErrEmptyModel) {
			respondWithError(w, http.StatusServiceUnavailable, "No model is loaded")
			return
		}
		m.logger.ErrorContext(r.Context(), "Failed to prune model", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Pruning failed: %v", err))
		return
	}
	m.persistModel(w, r)
}

func (m *MarkovAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !requireScope(w, r, scopeModelRead) {
		return
	}
	m.respondWithStats(w, r, http.StatusOK)
}

// persistModel writes the active model to the model file so it survives a
// restart, then responds with its stats.
func (m *MarkovAPI) persistModel(w http.ResponseWriter, r *http.Request) {
	path := m.modelPath
	if path == "" {
		path = m.config.Get().Server.ModelPath
	}
	if err := saveModelFile(m.chain, path); err != nil {
		m.logger.ErrorContext(r.Context(), "Failed to write model file", "path", path, "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Model is active but was not saved: %v", err))
		return
	}
	m.respondWithStats(w, r, http.StatusOK)
}

func (m *MarkovAPI) respondWithStats(w http.ResponseWriter, r *http.Request, code int) {
	stats, err := m.chain.Stats()
	if err != nil {
		if errors.Is(err, markov.ErrEmptyModel) {
			respondWithError(w, http.StatusServiceUnavailable, "No model is loaded")
			return
		}
		m.logger.ErrorContext(r.Context(), "Failed to compute model stats", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	respondWithJSON(w, code, stats)
}

func (m *MarkovAPI) handleListModels(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) || !requireScope(w, r, scopeModelRead) {
		return
	}
	models, err := m.store.ListModels(r.Context())
	if err != nil {
		m.logger.ErrorContext(r.Context(), "Failed to list models", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve models: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, models)
}

// handleModelByName routes actions on a stored model: save the active model
// under a name, activate a stored model, or delete one.
func (m *MarkovAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/models/"), "/")
	name := parts[0]
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			if requireScope(w, r, scopeModelRead) {
				m.getModel(w, r, name)
			}
		case http.MethodPost:
			if requireScope(w, r, scopeModelWrite) {
				m.saveModel(w, r, name)
			}
		case http.MethodDelete:
			if requireScope(w, r, scopeModelWrite) {
				m.removeModel(w, r, name)
			}
		default:
			w.Header().Set("Allow", "GET, POST, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if len(parts) > 2 {
		respondWithError(w, http.StatusNotFound, "Action not found")
		return
	}
	switch parts[1] {
	case "activate":
		if !requireMethod(w, r, http.MethodPost) || !requireScope(w, r, scopeModelWrite) {
			return
		}
		m.activateModel(w, r, name)
	default:
		respondWithError(w, http.StatusNotFound, "Action not found")
	}
}

func (m *MarkovAPI) getModel(w http.ResponseWriter, r *http.Request, name string) {
	info, err := m.store.GetModelInfo(r.Context(), name)
	if err != nil {
		m.respondWithStoreError(w, r, name, err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

func (m *MarkovAPI) saveModel(w http.ResponseWriter, r *http.Request, name string) {
	index := m.chain.Index()
	if index == nil {
		respondWithError(w, http.StatusServiceUnavailable, "No model is loaded")
		return
	}
	if err := m.store.SaveModel(r.Context(), name, index); err != nil {
		m.respondWithStoreError(w, r, name, err)
		return
	}
	info, err := m.store.GetModelInfo(r.Context(), name)
	if err != nil {
		m.respondWithStoreError(w, r, name, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, info)
}

func (m *MarkovAPI) activateModel(w http.ResponseWriter, r *http.Request, name string) {
	index, err := m.store.LoadModel(r.Context(), name)
	if err != nil {
		m.respondWithStoreError(w, r, name, err)
		return
	}
	m.chain.Install(index)
	m.logger.InfoContext(r.Context(), "Stored model activated", "model_name", name)
	m.persistModel(w, r)
}

func (m *MarkovAPI) removeModel(w http.ResponseWriter, r *http.Request, name string) {
	if err := m.store.RemoveModel(r.Context(), name); err != nil {
		m.respondWithStoreError(w, r, name, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *MarkovAPI) respondWithStoreError(w http.ResponseWriter, r *http.Request, name string, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		respondWithError(w, http.StatusNotFound, "Model not found")
		return
	}
	m.logger.ErrorContext(r.Context(), "Model store operation failed", "model_name", name, "error", err)
	respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Database error: %v", err))
}

// requireMethod writes a 405 response and returns false unless the request
// uses method.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}
