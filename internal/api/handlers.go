package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forgepoint/gentuner/internal/genconfig"
	"github.com/forgepoint/gentuner/internal/model"
	"github.com/forgepoint/gentuner/internal/recommend"
	"github.com/forgepoint/gentuner/internal/scorer"
	"github.com/forgepoint/gentuner/internal/store"
	"github.com/forgepoint/gentuner/internal/sweetspot"
)

var validate = validator.New()

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type ingestRequest struct {
	ComponentType string             `json:"component_type" validate:"required"`
	ItemKey       string             `json:"item_key,omitempty"`
	Parameters    map[string]float64 `json:"parameters" validate:"required"`
	RawSignals    map[string]float64 `json:"raw_signals" validate:"required"`
	Success       bool               `json:"success"`
}

type ingestResponse struct {
	ID             int64          `json:"id"`
	UID            string         `json:"uid"`
	CompositeScore float64        `json:"composite_score"`
	Breakdown      *scorer.Result `json:"breakdown"`
}

type listResponse struct {
	Attempts []model.AttemptRecord `json:"attempts"`
	Total    int                   `json:"total"`
}

// handleIngest scores the raw signals and persists the attempt in one call.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.scorer.Score(req.RawSignals)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	rec := &model.AttemptRecord{
		ComponentType:  req.ComponentType,
		ItemKey:        req.ItemKey,
		Parameters:     req.Parameters,
		RawSignals:     req.RawSignals,
		CompositeScore: result.Composite,
		Success:        req.Success,
	}
	id, err := s.store.Append(r.Context(), rec)
	if err != nil {
		if eris.Is(err, model.ErrInvalidAttempt) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.internalError(w, "append attempt", err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordAttempt(req.ComponentType, req.Success, result.Composite)
	}

	writeJSON(w, http.StatusCreated, ingestResponse{
		ID:             id,
		UID:            rec.UID,
		CompositeScore: result.Composite,
		Breakdown:      result,
	})
}

// handleListAttempts returns attempts newest-first under the query-string
// filter, plus the total matching count ignoring pagination.
func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	attempts, err := s.store.Query(r.Context(), filter)
	if err != nil {
		s.internalError(w, "query attempts", err)
		return
	}

	countFilter := filter
	countFilter.Limit = 0
	countFilter.Offset = 0
	total, err := s.store.Count(r.Context(), countFilter)
	if err != nil {
		s.internalError(w, "count attempts", err)
		return
	}

	if attempts == nil {
		attempts = []model.AttemptRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{Attempts: attempts, Total: total})
}

// handleArchive soft-deletes one attempt and drops every cached sweet spot
// its scope could have contributed to.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid attempt id")
		return
	}

	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "attempt not found")
			return
		}
		s.internalError(w, "get attempt", err)
		return
	}

	if err := s.store.Archive(r.Context(), id); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "attempt not found")
			return
		}
		s.internalError(w, "archive attempt", err)
		return
	}

	for _, sc := range recommend.WideningScopes(rec.ComponentType, rec.ItemKey) {
		s.analyzer.Invalidate(sc)
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "archived": true})
}

// handleSweetSpot analyzes exactly the named scope, without widening.
func (s *Server) handleSweetSpot(w http.ResponseWriter, r *http.Request) {
	componentType := chi.URLParam(r, "componentType")
	itemKey := chi.URLParam(r, "itemKey")

	scope := model.TypeScope(componentType)
	if itemKey != "" {
		scope = model.ItemScope(componentType, itemKey)
	}

	var threshold float64
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 100 {
			writeError(w, http.StatusBadRequest, "threshold must be a number between 0 and 100")
			return
		}
		threshold = v
	}

	spot, err := s.analyzer.Analyze(r.Context(), scope, threshold)
	if err != nil {
		if eris.Is(err, sweetspot.ErrNotEnoughData) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.internalError(w, "analyze sweet spot", err)
		return
	}
	writeJSON(w, http.StatusOK, spot)
}

// handleRecommendation resolves with the item -> type -> global fallback.
func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	componentType := chi.URLParam(r, "componentType")
	itemKey := chi.URLParam(r, "itemKey")

	spot, err := s.resolver.Resolve(r.Context(), componentType, itemKey)
	if err != nil {
		if eris.Is(err, recommend.ErrNoPriorKnowledge) {
			if s.metrics != nil {
				s.metrics.RecordResolution("none")
			}
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.internalError(w, "resolve recommendation", err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordResolution(resolutionLevel(spot.Scope))
	}
	writeJSON(w, http.StatusOK, spot)
}

// handlePlan runs the dynamic config calculator.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req genconfig.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := s.calculator.ComputePlan(r.Context(), req)
	if err != nil {
		s.internalError(w, "compute plan", err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordPlan(req.ComponentType, plan.Source)
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("api: store unreachable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// filterFromQuery maps list query parameters onto an AttemptFilter.
func filterFromQuery(r *http.Request) (store.AttemptFilter, error) {
	q := r.URL.Query()
	filter := store.AttemptFilter{Limit: defaultListLimit}

	if componentType := q.Get("component_type"); componentType != "" {
		filter.Scope = model.TypeScope(componentType)
		if itemKey := q.Get("item_key"); itemKey != "" {
			filter.Scope = model.ItemScope(componentType, itemKey)
		}
	} else if q.Get("item_key") != "" {
		return filter, eris.New("item_key requires component_type")
	}

	if raw := q.Get("success_only"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, eris.New("success_only must be a boolean")
		}
		filter.SuccessOnly = v
	}
	if raw := q.Get("include_archived"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, eris.New("include_archived must be a boolean")
		}
		filter.IncludeArchived = v
	}
	if raw := q.Get("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, eris.New("min_score must be a number")
		}
		filter.MinScore = v
	}
	if raw := q.Get("since"); raw != "" {
		v, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, eris.New("since must be an RFC 3339 timestamp")
		}
		filter.Since = v
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return filter, eris.New("limit must be a positive integer")
		}
		if v > maxListLimit {
			v = maxListLimit
		}
		filter.Limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return filter, eris.New("offset must be a non-negative integer")
		}
		filter.Offset = v
	}

	return filter, nil
}

// resolutionLevel names the scope level a recommendation came from, for the
// resolutions counter.
func resolutionLevel(sc model.Scope) string {
	switch {
	case sc.IsItem():
		return "item"
	case sc.IsGlobal():
		return "global"
	default:
		return "component_type"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	zap.L().Error("api: "+op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
