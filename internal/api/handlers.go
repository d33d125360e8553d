package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/service"
)

// Handler holds API route handlers.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func writeServiceError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("conflict"))
	default:
		slog.Error(what+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListChecklists handles GET /api/checklists.
//
//	@Summary		List checklists in display order
//	@Tags			checklists
//	@Produce		json
//	@Success		200	{object}	ChecklistListResponse
//	@Security		BearerAuth
//	@Router			/checklists [get]
func (h *Handler) ListChecklists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ChecklistListResponse{Checklists: h.svc.Checklists(r.Context())})
}

// GetChecklist handles GET /api/checklists/{id}.
//
//	@Summary		Get a checklist with its ordered steps
//	@Tags			checklists
//	@Produce		json
//	@Param			id	path		string	true	"Checklist id"
//	@Success		200	{object}	ChecklistDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/checklists/{id} [get]
func (h *Handler) GetChecklist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, steps, err := h.svc.Checklist(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "get checklist")
		return
	}
	if steps == nil {
		steps = []models.Step{}
	}
	writeJSON(w, http.StatusOK, ChecklistDetail{Checklist: c, Steps: steps})
}

// CreateChecklist handles POST /api/checklists.
//
//	@Summary		Create a checklist
//	@Tags			checklists
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateChecklistRequest	true	"Checklist"
//	@Success		201		{object}	models.Checklist
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/checklists [post]
func (h *Handler) CreateChecklist(w http.ResponseWriter, r *http.Request) {
	var req CreateChecklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	c, err := h.svc.CreateChecklist(r.Context(), req.Title)
	if err != nil {
		writeServiceError(w, err, "create checklist")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateChecklist handles PATCH /api/checklists/{id}.
func (h *Handler) UpdateChecklist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req UpdateChecklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	c, err := h.svc.UpdateChecklist(r.Context(), id, req.Title, req.Ordinal)
	if err != nil {
		writeServiceError(w, err, "update checklist")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteChecklist handles DELETE /api/checklists/{id}.
func (h *Handler) DeleteChecklist(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteChecklist(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err, "delete checklist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateStep handles POST /api/checklists/{id}/steps.
func (h *Handler) CreateStep(w http.ResponseWriter, r *http.Request) {
	var req CreateStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	st, err := h.svc.AddStep(r.Context(), chi.URLParam(r, "id"), req.Title)
	if err != nil {
		writeServiceError(w, err, "create step")
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// UpdateStep handles PATCH /api/steps/{id}.
func (h *Handler) UpdateStep(w http.ResponseWriter, r *http.Request) {
	var req UpdateStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid body"))
		return
	}
	st, err := h.svc.UpdateStep(r.Context(), chi.URLParam(r, "id"), req.Title, req.Ordinal, req.Done)
	if err != nil {
		writeServiceError(w, err, "update step")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// DeleteStep handles DELETE /api/steps/{id}.
func (h *Handler) DeleteStep(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteStep(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err, "delete step")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartStep handles POST /api/steps/{id}/start.
//
//	@Summary		Open a log entry for a step
//	@Tags			log
//	@Produce		json
//	@Param			id	path		string	true	"Step id"
//	@Success		201	{object}	models.LogEntry
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/steps/{id}/start [post]
func (h *Handler) StartStep(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.StartStep(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "start step")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// FinishStep handles POST /api/steps/{id}/finish.
func (h *Handler) FinishStep(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.FinishStep(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err, "finish step")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// CreateMarker handles POST /api/checklists/{id}/markers.
func (h *Handler) CreateMarker(w http.ResponseWriter, r *http.Request) {
	var req MarkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Kind == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("kind is required"))
		return
	}
	kind := models.ParseEntryKind(req.Kind)
	if kind == models.KindNormal {
		writeJSON(w, http.StatusBadRequest, errorBody("kind must be a marker kind"))
		return
	}
	e, err := h.svc.Mark(r.Context(), chi.URLParam(r, "id"), kind, req.Start, req.End)
	if err != nil {
		writeServiceError(w, err, "create marker")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// ListRuns handles GET /api/runs.
//
//	@Summary		Reconstruct runs inside a time window
//	@Tags			runs
//	@Produce		json
//	@Param			checklist	query		string	false	"Restrict to one checklist"
//	@Param			from		query		int		true	"Window start (ms epoch, inclusive)"
//	@Param			to			query		int		true	"Window end (ms epoch, exclusive)"
//	@Param			order		query		string	false	"asc (default) or desc"
//	@Success		200			{object}	RunListResponse
//	@Security		BearerAuth
//	@Router			/runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, _ := strconv.ParseInt(q.Get("from"), 10, 64)
	to, _ := strconv.ParseInt(q.Get("to"), 10, 64)
	if to <= from {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid window"))
		return
	}
	runs, err := h.svc.Runs(r.Context(), q.Get("checklist"), from, to, q.Get("order") == "desc")
	if err != nil {
		writeServiceError(w, err, "list runs")
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	writeJSON(w, http.StatusOK, RunListResponse{Runs: runs})
}

// DeleteRun handles DELETE /api/runs.
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	var req DeleteRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.EntryIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("entry_ids are required"))
		return
	}
	if err := h.svc.DeleteRun(r.Context(), req.EntryIDs); err != nil {
		writeServiceError(w, err, "delete run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncPull handles POST /api/sync/pull. An in-flight pull for the same
// purpose makes this a no-op, reported as 202.
func (h *Handler) SyncPull(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	err := h.svc.TriggerPull(r.Context(), req.Purpose)
	if errors.Is(err, apperr.ErrSyncInFlight) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "in flight"})
		return
	}
	if err != nil {
		writeServiceError(w, err, "sync pull")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SyncPush handles POST /api/sync/push.
func (h *Handler) SyncPush(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.TriggerPush(r.Context()); err != nil {
		writeServiceError(w, err, "sync push")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SyncReset handles POST /api/sync/reset.
func (h *Handler) SyncReset(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if err := h.svc.TriggerReset(r.Context(), req.Purpose); err != nil {
		writeServiceError(w, err, "sync reset")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SyncStatus handles GET /api/sync/status.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	pending, lastErr := h.svc.SyncStatus()
	resp := SyncStatusResponse{Pending: pending}
	if lastErr != nil {
		resp.LastError = lastErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
