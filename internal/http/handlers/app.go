package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"imagine/internal/domain"
	"imagine/internal/generation"
	"imagine/internal/infra"
)

// App bundles the dependencies of the JSON API.
type App struct {
	Config   *infra.Config
	Logger   *infra.Logger
	Store    domain.GenerationRepository
	Sessions *generation.Registry
	validate *validator.Validate
}

func NewApp(cfg *infra.Config, logger *infra.Logger, store domain.GenerationRepository, sessions *generation.Registry) *App {
	if logger == nil {
		logger = infra.DiscardLogger()
	}
	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Sessions: sessions,
		validate: validator.New(),
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errorDetail{Code: errCode, Message: message}})
}

// fail translates domain errors into HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		a.error(w, http.StatusBadRequest, domain.KindInvalidInput, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, domain.KindNotFound, "generation not found")
	case errors.Is(err, domain.ErrMissingConfig):
		a.error(w, http.StatusServiceUnavailable, domain.KindMissingConfig, "generation API URL is not configured")
	case errors.Is(err, domain.ErrPersistenceDisabled):
		a.error(w, http.StatusServiceUnavailable, "persistence_disabled", "history storage is not configured")
	case errors.Is(err, domain.ErrClosed):
		a.error(w, http.StatusServiceUnavailable, "shutting_down", "server is shutting down")
	default:
		a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		a.error(w, http.StatusInternalServerError, domain.KindInternal, "internal error")
	}
}

// decode reads a JSON body into dst and validates its struct tags.
func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return false
	}
	if err := a.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, e := range verrs {
				fields[e.Field()] = fieldMessage(e)
			}
			a.json(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code:    domain.KindInvalidInput,
				Message: "invalid payload",
				Fields:  fields,
			}})
			return false
		}
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return false
	}
	return true
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "uuid":
		return "must be a UUID"
	case "email":
		return "must be a valid email address"
	default:
		return "is invalid (" + e.Tag() + ")"
	}
}
