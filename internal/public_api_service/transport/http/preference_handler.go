package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	prefdomain "github.com/lynqchat/golang_services/internal/preference_service/domain"
	"github.com/lynqchat/golang_services/internal/public_api_service/middleware"
)

type PreferenceHandler struct {
	prefs    Preferences
	validate *validator.Validate
	logger   *slog.Logger
}

func NewPreferenceHandler(prefs Preferences, validate *validator.Validate, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{prefs: prefs, validate: validate, logger: logger.With("handler", "preference")}
}

func (h *PreferenceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/preferences", h.handleGet)
	r.Patch("/preferences", h.handleUpdate)
}

func (h *PreferenceHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	authUser, ok := middleware.UserFromContext(r.Context())
	if !ok {
		jsonError(w, h.logger, "User not authenticated", http.StatusUnauthorized)
		return
	}
	p, err := h.prefs.Get(r.Context(), authUser.ID)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, h.logger, err, "get_preferences")
		return
	}
	writeJSON(w, http.StatusOK, PreferenceResponse{SelfDestructSeconds: p.SelfDestructSeconds})
}

func (h *PreferenceHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		jsonError(w, h.logger, "User not authenticated", http.StatusUnauthorized)
		return
	}
	logger := h.logger.With("auth_user_id", authUser.ID)

	var req UpdatePreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, logger, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		jsonError(w, logger, "Validation error: "+err.Error(), http.StatusBadRequest)
		return
	}

	update := prefdomain.PreferenceUpdate{SelfDestructSeconds: prefdomain.None[int]()}
	if req.SelfDestructSeconds != nil {
		update.SelfDestructSeconds = prefdomain.Some(*req.SelfDestructSeconds)
	}
	p, err := h.prefs.Update(ctx, authUser.ID, update)
	if err != nil {
		mapDomainErrorToHTTPStatus(w, logger, err, "update_preferences")
		return
	}
	writeJSON(w, http.StatusOK, PreferenceResponse{SelfDestructSeconds: p.SelfDestructSeconds})
}
