package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/coursekit/genprogress/internal/engine"
	"github.com/coursekit/genprogress/internal/registry"
	"github.com/coursekit/genprogress/internal/store"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
	repoTimeout     = 3 * time.Second
)

// RunHandler exposes the run lifecycle and progress endpoints.
type RunHandler struct {
	registry *registry.Registry
	repo     store.SnapshotRepository
	timeout  time.Duration
	logger   *zap.Logger
}

// NewRunHandler wires the registry, repository, and logger. The repository may
// be nil; list and historic lookups then answer 503.
func NewRunHandler(reg *registry.Registry, repo store.SnapshotRepository, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{
		registry: reg,
		repo:     repo,
		timeout:  repoTimeout,
		logger:   logger,
	}
}

// CreateRun handles POST /v1/runs. It registers a new run and returns its
// identifier with status 201.
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	id, err := h.registry.Create(r.Context())
	if err != nil {
		h.logger.Error("create run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"run_id": id.String()})
}

// PostEvent handles POST /v1/runs/{run_id}/events. The body is one pipeline
// event; the response carries the resulting overall fraction. Unknown runs
// yield 404 and malformed JSON 400.
func (h *RunHandler) PostEvent(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var ev engine.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	overall, err := h.registry.Apply(r.Context(), id, ev)
	if err != nil {
		if errors.Is(err, registry.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("apply event failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to apply event")
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"overall": overall})
}

type totalsRequest struct {
	TotalModules    *int `json:"total_modules"`
	TotalSubmodules *int `json:"total_submodules"`
}

// PutTotals handles PUT /v1/runs/{run_id}/totals with authoritative module and
// submodule counts from the pipeline planner.
func (h *RunHandler) PutTotals(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req totalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.TotalModules == nil && req.TotalSubmodules == nil {
		writeError(w, http.StatusBadRequest, "total_modules or total_submodules is required")
		return
	}
	if err := h.registry.DeclareTotals(r.Context(), id, req.TotalModules, req.TotalSubmodules); err != nil {
		if errors.Is(err, registry.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("declare totals failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to declare totals")
		return
	}
	snap, err := h.registry.Snapshot(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"total_modules":    snap.TotalModules,
		"total_submodules": snap.TotalSubmodules,
	})
}

// CompleteRun handles POST /v1/runs/{run_id}/complete. It finalizes the run
// and returns the last overall fraction.
func (h *RunHandler) CompleteRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	overall, err := h.registry.Complete(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("complete run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to complete run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":  id.String(),
		"overall": overall,
	})
}

// GetRun handles GET /v1/runs/{run_id}. Active runs answer with the live
// tracker snapshot; completed runs fall back to the persisted record.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.registry.Snapshot(id)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"run_id":   id.String(),
			"live":     true,
			"progress": snap,
		})
		return
	}
	if !errors.Is(err, registry.ErrRunNotFound) {
		h.logger.Error("snapshot failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if h.repo == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rec, err := h.repo.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": id.String(),
		"live":   false,
		"record": toRunDTO(rec),
	})
}

// ListRuns handles GET /v1/runs?done=&limit=&offset= against the repository.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run repository unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var done *bool
	if doneParam := strings.TrimSpace(r.URL.Query().Get("done")); doneParam != "" {
		val, parseErr := strconv.ParseBool(doneParam)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid done filter")
			return
		}
		done = &val
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	recs, err := h.repo.ListRuns(ctx, done, limit, offset)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": toRunDTOs(recs)})
}

type runDTO struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Phase      string     `json:"phase,omitempty"`
	Overall    float64    `json:"overall"`
	Done       bool       `json:"done"`
}

func toRunDTO(rec store.RunRecord) runDTO {
	return runDTO{
		RunID:      rec.RunID.String(),
		StartedAt:  rec.StartedAt,
		UpdatedAt:  rec.UpdatedAt,
		FinishedAt: rec.FinishedAt,
		Phase:      rec.Phase,
		Overall:    rec.Overall,
		Done:       rec.Done,
	}
}

func toRunDTOs(in []store.RunRecord) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, rec := range in {
		out = append(out, toRunDTO(rec))
	}
	return out
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	runIDStr := chi.URLParam(r, "run_id")
	if runIDStr == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return runID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
