package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/zentra/quartzite/internal/utils"
)

type Handler struct {
	service  *Service
	validate *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/login", h.Login)
	r.Get("/callback", h.Callback)
	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)

	return r
}

// Login redirects the browser to the Discord authorization page.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	authorizeURL, err := h.service.BeginLogin(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to begin login")
		utils.RespondError(w, http.StatusInternalServerError, "Failed to begin login")
		return
	}
	http.Redirect(w, r, authorizeURL, http.StatusTemporaryRedirect)
}

// Callback completes the OAuth flow and returns the token pair plus the
// signed-in user and their accessible guilds.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		utils.RespondError(w, http.StatusBadRequest, "Missing state or code")
		return
	}

	pair, session, err := h.service.CompleteLogin(r.Context(), state, code)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidState):
			utils.RespondError(w, http.StatusBadRequest, "Invalid or expired state")
		case errors.Is(err, ErrNotAllowed):
			utils.RespondError(w, http.StatusForbidden, "Not a member of any allowed server")
		default:
			log.Error().Err(err).Msg("OAuth callback failed")
			utils.RespondError(w, http.StatusInternalServerError, "Sign-in failed")
		}
		return
	}

	log.Info().
		Str("userId", session.User.ID).
		Int("guilds", len(session.Guilds)).
		Msg("User signed in")

	utils.RespondSuccess(w, map[string]any{
		"tokens": pair,
		"user":   session.User,
		"guilds": session.Guilds,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// Refresh exchanges a refresh token for a fresh token pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	pair, session, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidSession) {
			utils.RespondError(w, http.StatusUnauthorized, "Invalid or expired session")
			return
		}
		log.Error().Err(err).Msg("Failed to refresh session")
		utils.RespondError(w, http.StatusInternalServerError, "Failed to refresh session")
		return
	}

	utils.RespondSuccess(w, map[string]any{
		"tokens": pair,
		"user":   session.User,
		"guilds": session.Guilds,
	})
}

// Logout invalidates the session behind a refresh token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		log.Error().Err(err).Msg("Failed to log out")
		utils.RespondError(w, http.StatusInternalServerError, "Failed to log out")
		return
	}

	utils.RespondNoContent(w)
}
