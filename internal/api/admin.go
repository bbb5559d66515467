package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mbolshakov/gotrial/internal/store"
	"github.com/mbolshakov/gotrial/internal/targeting"
)

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var exp store.Experiment
	if err := json.NewDecoder(r.Body).Decode(&exp); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if exp.ID == "" {
		exp.ID = uuid.New().String()
	}
	if exp.Status == "" {
		exp.Status = store.StatusDraft
	}
	exp.UpdatedAt = time.Now().UTC()

	if err := store.ValidateDefinition(&exp); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if exp.Audience != nil && exp.Audience.Expression != "" {
		if err := targeting.ValidateExpression(exp.Audience.Expression); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := s.store.Create(r.Context(), exp); err != nil {
		if errors.Is(err, store.ErrFeatureHasActive) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.log.Error().Err(err).Str("experiment", exp.ID).Msg("failed to create experiment")
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}

	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	feature := strings.TrimSpace(r.URL.Query().Get("feature"))

	experiments, err := s.store.List(r.Context(), feature)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list experiments")
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, experiments)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	exp, err := s.store.GetByID(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("experiment", id).Msg("failed to load experiment")
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	switch req.Status {
	case store.StatusDraft, store.StatusActive, store.StatusExpired:
	default:
		writeError(w, http.StatusBadRequest, "status must be DRAFT, ACTIVE or EXPIRED")
		return
	}

	err := s.store.SetStatus(r.Context(), id, req.Status)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	case errors.Is(err, store.ErrFeatureHasActive):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.Error().Err(err).Str("experiment", id).Msg("failed to set status")
		writeError(w, http.StatusInternalServerError, "status update failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.store.Delete(r.Context(), id); err != nil {
		s.log.Error().Err(err).Str("experiment", id).Msg("failed to delete experiment")
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
