package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/rollout/pkg/eventlog"
	"github.com/dmitrymomot/rollout/pkg/feature"
	"github.com/dmitrymomot/rollout/pkg/logger"
	"github.com/dmitrymomot/rollout/pkg/rollout"
)

// FeatureResponse is a feature as returned by the API.
type FeatureResponse struct {
	*feature.Feature
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// ActiveResponse is the result of an activation check.
type ActiveResponse struct {
	Feature string `json:"feature"`
	User    string `json:"user,omitempty"`
	IP      string `json:"ip,omitempty"`
	Active  bool   `json:"active"`
}

// EventResponse is an audit event as returned by the API.
type EventResponse struct {
	ID        string          `json:"id"`
	Name      eventlog.Kind   `json:"name"`
	Data      eventlog.Change `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// Handler serves the feature admin endpoints.
type Handler struct {
	rollout *rollout.Rollout
	log     *slog.Logger
}

// NewHandler creates the feature handlers.
func NewHandler(r *rollout.Rollout, log *slog.Logger) *Handler {
	if r == nil {
		panic("api: rollout cannot be nil")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{rollout: r, log: log.With(logger.Component("api"))}
}

// List returns every known feature with its state.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.rollout.Features(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items := make([]FeatureResponse, 0, len(names))
	for _, name := range names {
		f, err := h.rollout.Get(r.Context(), name)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		items = append(items, FeatureResponse{Feature: f})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

// Get returns one feature, with the time of its last change when the
// audit log is enabled.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f, err := h.rollout.Get(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := FeatureResponse{Feature: f}
	if events := h.rollout.EventLog(); events != nil {
		at, ok, err := events.UpdatedAt(r.Context(), name)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if ok {
			resp.UpdatedAt = &at
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// Active checks the feature for the user or ip query parameter.
// Without either the check is anonymous.
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	user := strings.TrimSpace(r.URL.Query().Get("user"))
	ip := strings.TrimSpace(r.URL.Query().Get("ip"))

	if user != "" && ip != "" {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "user and ip are mutually exclusive")
		return
	}

	var (
		active bool
		err    error
	)
	switch {
	case ip != "":
		active, err = h.rollout.IsActiveIP(r.Context(), name, ip)
	case user != "":
		active, err = h.rollout.IsActive(r.Context(), name, feature.UserID(user))
	default:
		active, err = h.rollout.IsActive(r.Context(), name, nil)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}

	subject := logger.Actor(user)
	if ip != "" {
		subject = logger.IP(ip)
	}
	h.log.DebugContext(r.Context(), "feature checked", logger.Feature(name), subject, logger.Active(active))
	writeJSON(w, r, http.StatusOK, ActiveResponse{Feature: name, User: user, IP: ip, Active: active})
}

// Events returns the audit log of a feature, most recent first.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	events := h.rollout.EventLog()
	if events == nil {
		writeError(w, r, http.StatusNotFound, CodeNotFound, "audit log is disabled")
		return
	}

	list, err := events.Events(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items := make([]EventResponse, 0, len(list))
	for _, e := range list {
		items = append(items, EventResponse{ID: e.ID, Name: e.Kind, Data: e.Data, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

// Activate turns the feature on for everyone.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.rollout.Activate)
}

// Deactivate clears the feature.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.rollout.Deactivate)
}

// SetPercentage expects {"percentage": n}. Values are clamped to [0, 100].
func (h *Handler) SetPercentage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Percentage *int `json:"percentage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Percentage == nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "percentage is required")
		return
	}
	h.mutateWith(w, r, func(name string) error {
		return h.rollout.ActivatePercentage(r.Context(), name, *body.Percentage)
	})
}

// ResetPercentage sets the percentage to zero.
func (h *Handler) ResetPercentage(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.rollout.DeactivatePercentage)
}

// AddUser expects {"id": "..."}.
func (h *Handler) AddUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.member(w, r, "id")
	if !ok {
		return
	}
	h.mutateWith(w, r, func(name string) error {
		return h.rollout.ActivateUserID(r.Context(), name, id)
	})
}

// RemoveUser drops the {id} path parameter from the allow-list.
func (h *Handler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.mutateWith(w, r, func(name string) error {
		return h.rollout.DeactivateUserID(r.Context(), name, id)
	})
}

// AddGroup expects {"group": "..."}.
func (h *Handler) AddGroup(w http.ResponseWriter, r *http.Request) {
	group, ok := h.member(w, r, "group")
	if !ok {
		return
	}
	h.mutateWith(w, r, func(name string) error {
		return h.rollout.ActivateGroup(r.Context(), name, group)
	})
}

// RemoveGroup drops the {group} path parameter.
func (h *Handler) RemoveGroup(w http.ResponseWriter, r *http.Request) {
	group := chi.URLParam(r, "group")
	h.mutateWith(w, r, func(name string) error {
		return h.rollout.DeactivateGroup(r.Context(), name, group)
	})
}

// AddIP expects {"ip": "..."}. Invalid addresses are rejected.
func (h *Handler) AddIP(w http.ResponseWriter, r *http.Request) {
	ip, ok := h.member(w, r, "ip")
	if !ok {
		return
	}
	if !feature.ValidIP(ip) {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid ip address")
		return
	}
	h.mutateWith(w, r, func(name string) error {
		return h.rollout.ActivateIP(r.Context(), name, ip)
	})
}

// RemoveIP drops the {ip} path parameter from the allow-list.
func (h *Handler) RemoveIP(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	h.mutateWith(w, r, func(name string) error {
		return h.rollout.DeactivateIP(r.Context(), name, ip)
	})
}

// member decodes a one-field JSON body and requires a non-empty value.
func (h *Handler) member(w http.ResponseWriter, r *http.Request, field string) (string, bool) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, "invalid payload")
		return "", false
	}
	v := strings.TrimSpace(body[field])
	if v == "" {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, field+" is required")
		return "", false
	}
	return v, true
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, name string) error) {
	h.mutateWith(w, r, func(name string) error { return fn(r.Context(), name) })
}

// mutateWith applies fn to the {name} feature and responds with the new state.
func (h *Handler) mutateWith(w http.ResponseWriter, r *http.Request, fn func(name string) error) {
	name := chi.URLParam(r, "name")
	if err := fn(name); err != nil {
		h.fail(w, r, err)
		return
	}

	f, err := h.rollout.Get(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.InfoContext(r.Context(), "feature changed via api",
		logger.Feature(name),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
	writeJSON(w, r, http.StatusOK, FeatureResponse{Feature: f})
}

// fail maps domain errors to HTTP responses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rollout.ErrEmptyFeatureName), errors.Is(err, rollout.ErrInvalidFeatureName),
		errors.Is(err, rollout.ErrInvalidMember):
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
	case errors.Is(err, rollout.ErrObserverFailed):
		h.log.ErrorContext(r.Context(), "change saved but not recorded", logger.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "change saved but audit logging failed")
	default:
		h.log.ErrorContext(r.Context(), "request failed", logger.Error(err))
		writeError(w, r, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}
