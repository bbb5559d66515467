package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mbolshakov/gotrial/internal/audience"
	"github.com/mbolshakov/gotrial/internal/experiment"
	"github.com/mbolshakov/gotrial/internal/resolver"
	"github.com/mbolshakov/gotrial/internal/store"
	"github.com/mbolshakov/gotrial/internal/telemetry"
)

// handleRecommendations serves the item list for a feature. When the feature
// has an active experiment and the user is in its audience, the experiment
// decides which variation resolves the items; otherwise the default product
// resolver serves the feature.
func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	feature := strings.TrimSpace(q.Get("feature"))
	userID := strings.TrimSpace(q.Get("userId"))
	if feature == "" {
		writeError(w, http.StatusBadRequest, "feature is required")
		return
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	req := experiment.Request{
		UserID:        userID,
		CurrentItemID: strings.TrimSpace(q.Get("currentItemId")),
		NumResults:    parseNumResults(q.Get("numResults")),
		UserContext:   parseUserContext(q.Get("userContext"), userID),
	}

	s.resolve(w, r.Context(), feature, req, resolver.Config{Type: resolver.TypeProduct})
}

// handleRerank reorders a caller-supplied candidate list. The default is the
// no-op resolver, which preserves the caller's order.
func (s *Server) handleRerank(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	feature := strings.TrimSpace(q.Get("feature"))
	userID := strings.TrimSpace(q.Get("userId"))
	if feature == "" {
		writeError(w, http.StatusBadRequest, "feature is required")
		return
	}
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	itemIDs := splitItemIDs(q.Get("itemIds"))
	if len(itemIDs) == 0 {
		writeError(w, http.StatusBadRequest, "itemIds is required")
		return
	}

	req := experiment.Request{
		UserID:      userID,
		ItemIDs:     itemIDs,
		NumResults:  len(itemIDs),
		UserContext: parseUserContext(q.Get("userContext"), userID),
	}

	s.resolve(w, r.Context(), feature, req, resolver.Config{Type: resolver.TypeRankingNoOp})
}

// resolve runs the shared resolution flow: active experiment with audience
// gate first, default resolver fallback otherwise.
func (s *Server) resolve(w http.ResponseWriter, ctx context.Context, feature string, req experiment.Request, defaultCfg resolver.Config) {
	if s.manager.IsConfigured(ctx) {
		exp, err := s.manager.GetActive(ctx, feature)
		if err != nil {
			s.log.Error().Err(err).Str("feature", feature).Msg("failed to load active experiment")
			writeError(w, http.StatusInternalServerError, "experiment lookup failed")
			return
		}
		if exp != nil && exp.MatchesAudience(req.UserContext) {
			items, err := exp.GetItems(ctx, req)
			if err != nil {
				s.log.Error().Err(err).Str("feature", feature).Str("experiment", exp.Definition().ID).Msg("experiment resolution failed")
				writeError(w, http.StatusInternalServerError, "resolution failed")
				return
			}
			telemetry.RecommendationsServed.WithLabelValues(feature, exp.Definition().Type).Inc()
			writeJSON(w, http.StatusOK, items)
			return
		}
	}

	res, err := s.factory.New(defaultCfg)
	if err != nil {
		s.log.Error().Err(err).Str("feature", feature).Msg("failed to build default resolver")
		writeError(w, http.StatusInternalServerError, "resolution failed")
		return
	}
	items, err := res.GetItems(ctx, resolver.Params{
		UserID:        req.UserID,
		CurrentItemID: req.CurrentItemID,
		ItemIDs:       req.ItemIDs,
		NumResults:    req.NumResults,
	})
	if err != nil {
		s.log.Error().Err(err).Str("feature", feature).Msg("default resolution failed")
		writeError(w, http.StatusInternalServerError, "resolution failed")
		return
	}
	telemetry.RecommendationsServed.WithLabelValues(feature, "default").Inc()
	writeJSON(w, http.StatusOK, items)
}

type outcomeRequest struct {
	CorrelationID string     `json:"correlationId"`
	Timestamp     *time.Time `json:"timestamp,omitempty"` // RFC3339; defaults to receipt time
}

type outcomeResponse struct {
	Conversions int64 `json:"conversions"`
}

// handleOutcome attributes a conversion to the recommendation identified by
// a correlation token served earlier.
func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	corr, err := experiment.DecodeCorrelation(req.CorrelationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "correlationId is invalid")
		return
	}

	exp, err := s.manager.GetByID(r.Context(), corr.ExperimentID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "experiment not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("experiment", corr.ExperimentID).Msg("failed to load experiment")
		writeError(w, http.StatusInternalServerError, "experiment lookup failed")
		return
	}

	at := time.Now().UTC()
	if req.Timestamp != nil {
		at = req.Timestamp.UTC()
	}

	conversions, err := exp.TrackConversion(r.Context(), corr, at)
	switch {
	case errors.Is(err, experiment.ErrInvalidCorrelationID), errors.Is(err, store.ErrVariationOutOfRange):
		writeError(w, http.StatusBadRequest, "correlationId is invalid")
		return
	case err != nil:
		s.log.Error().Err(err).Str("experiment", corr.ExperimentID).Msg("failed to track conversion")
		writeError(w, http.StatusInternalServerError, "conversion tracking failed")
		return
	}

	writeJSON(w, http.StatusOK, outcomeResponse{Conversions: conversions})
}

// ---- param parsing ----

func parseNumResults(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func splitItemIDs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// parseUserContext decodes the optional userContext query param (a JSON
// object of user attributes). The user id is always present under "id".
func parseUserContext(raw, userID string) audience.UserContext {
	ctx := audience.UserContext{"id": userID}
	if strings.TrimSpace(raw) == "" {
		return ctx
	}
	var attrs map[string]any
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return ctx
	}
	for k, v := range attrs {
		if k == "id" {
			continue
		}
		ctx[k] = v
	}
	return ctx
}
