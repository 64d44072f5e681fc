package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"imagine/internal/domain"
	"imagine/internal/generation"
	"imagine/internal/middleware"
	"imagine/internal/validation"
)

type startGenerationRequest struct {
	Prompt      string `json:"prompt" validate:"required,max=2000"`
	AspectRatio string `json:"aspect_ratio" validate:"omitempty,max=32"`
}

type caller struct {
	SessionID string `validate:"required"`
	UserID    string `validate:"omitempty,uuid"`
	Email     string `validate:"omitempty,email"`
}

// caller resolves the identity forwarded by the gateway. The owner falls back
// to the configured default owner.
func (a *App) caller(w http.ResponseWriter, r *http.Request) (caller, bool) {
	id := middleware.IdentityFromContext(r.Context())
	c := caller{SessionID: id.SessionID, UserID: id.UserID, Email: id.Email}
	if err := a.validate.Struct(c); err != nil {
		a.error(w, http.StatusBadRequest, domain.KindInvalidInput, "invalid identity headers")
		return caller{}, false
	}
	if c.UserID == "" {
		c.UserID = a.Config.OwnerID
	}
	return c, true
}

func (a *App) isAdmin(c caller) bool {
	return a.Config.IsAdmin(c.Email)
}

// StartGeneration launches a job for the caller's session and answers with
// the submitting snapshot. The job keeps running after the response.
func (a *App) StartGeneration(w http.ResponseWriter, r *http.Request) {
	c, ok := a.caller(w, r)
	if !ok {
		return
	}
	var req startGenerationRequest
	if !a.decode(w, r, &req) {
		return
	}
	ratio, err := validation.ParseAspectRatio(req.AspectRatio)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ctrl, err := a.Sessions.Controller(c.SessionID, c.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	job, err := ctrl.Launch(context.WithoutCancel(r.Context()), req.Prompt, ratio)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, toJobResponse(job))
}

func (a *App) lookup(c caller) (*generation.Controller, bool) {
	return a.Sessions.Lookup(c.SessionID, c.UserID)
}

// ActiveGeneration reports the latest job of the caller's session.
func (a *App) ActiveGeneration(w http.ResponseWriter, r *http.Request) {
	c, ok := a.caller(w, r)
	if !ok {
		return
	}
	job := domain.GenerationJob{Status: domain.JobStatusIdle}
	if ctrl, found := a.lookup(c); found {
		job = ctrl.Snapshot()
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	c, ok := a.caller(w, r)
	if !ok {
		return
	}
	cancelled := false
	job := domain.GenerationJob{Status: domain.JobStatusIdle}
	if ctrl, found := a.lookup(c); found {
		cancelled = ctrl.Cancel()
		job = ctrl.Snapshot()
	}
	a.json(w, http.StatusOK, map[string]any{
		"cancelled": cancelled,
		"job":       toJobResponse(job),
	})
}

func (a *App) ResetGeneration(w http.ResponseWriter, r *http.Request) {
	c, ok := a.caller(w, r)
	if !ok {
		return
	}
	job := domain.GenerationJob{Status: domain.JobStatusIdle}
	if ctrl, found := a.lookup(c); found {
		ctrl.Reset()
		job = ctrl.Snapshot()
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

type listResponse struct {
	Items    []generationResponse `json:"items"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	HasMore  bool                 `json:"has_more"`
}

// ListGenerations pages through stored history, newest first. all=true lists
// every owner and is reserved for the administrator.
func (a *App) ListGenerations(w http.ResponseWriter, r *http.Request) {
	c, ok := a.caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := domain.ListFilter{OwnerID: c.UserID}
	var err error
	if filter.Page, err = intParam(q.Get("page")); err != nil {
		a.error(w, http.StatusBadRequest, domain.KindInvalidInput, "page must be a number")
		return
	}
	if filter.PageSize, err = intParam(q.Get("page_size")); err != nil {
		a.error(w, http.StatusBadRequest, domain.KindInvalidInput, "page_size must be a number")
		return
	}
	if all, _ := strconv.ParseBool(q.Get("all")); all {
		if !a.isAdmin(c) {
			a.error(w, http.StatusForbidden, "forbidden", "listing every owner requires the administrator")
			return
		}
		filter.IncludeAll = true
	}
	filter = filter.Normalize()

	items, err := a.Store.ListResults(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := listResponse{
		Items:    make([]generationResponse, 0, len(items)),
		Page:     filter.Page,
		PageSize: filter.PageSize,
		HasMore:  len(items) == filter.PageSize,
	}
	for _, g := range items {
		resp.Items = append(resp.Items, toGenerationResponse(g))
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) GetGeneration(w http.ResponseWriter, r *http.Request) {
	c, ok := a.caller(w, r)
	if !ok {
		return
	}
	gen, ok := a.owned(w, r, c)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, toGenerationResponse(*gen))
}

func (a *App) DeleteGeneration(w http.ResponseWriter, r *http.Request) {
	c, ok := a.caller(w, r)
	if !ok {
		return
	}
	gen, ok := a.owned(w, r, c)
	if !ok {
		return
	}
	if err := a.Store.DeleteResult(r.Context(), gen.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owned loads the generation named in the URL. Rows of other owners are
// reported as missing unless the caller is the administrator.
func (a *App) owned(w http.ResponseWriter, r *http.Request, c caller) (*domain.StoredGeneration, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	gen, err := a.Store.FindResult(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	if gen.OwnerID != "" && gen.OwnerID != c.UserID && !a.isAdmin(c) {
		a.fail(w, r, domain.ErrNotFound)
		return nil, false
	}
	return gen, true
}

func intParam(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
