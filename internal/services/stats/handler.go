package stats

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zentra/quartzite/internal/middleware"
	"github.com/zentra/quartzite/internal/utils"
)

// The chart defaults to the last 60 days plus a day of headroom so
// in-flight buckets show up.
const (
	defaultChartWindow   = 60 * 24 * time.Hour
	defaultChartHeadroom = 24 * time.Hour
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/{guildID}", func(r chi.Router) {
		r.Use(middleware.RequireGuildAccess("guildID"))
		r.Get("/usage/by-day", h.GetUsageByDay)
		r.Get("/leaderboard", h.GetLeaderboard)
	})

	return r
}

// GetUsageByDay returns the per-day-per-emoji counts powering the chart.
// start/end are unix milliseconds; the range defaults to the last 60 days.
func (h *Handler) GetUsageByDay(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	now := time.Now()
	start := time.UnixMilli(utils.GetQueryInt64(r, "start", now.Add(-defaultChartWindow).UnixMilli()))
	end := time.UnixMilli(utils.GetQueryInt64(r, "end", now.Add(defaultChartHeadroom).UnixMilli()))

	if !end.After(start) {
		utils.RespondError(w, http.StatusBadRequest, "end must be after start")
		return
	}

	counts, err := h.service.UsageByDay(r.Context(), guildID, start, end)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch usage")
		return
	}

	utils.RespondSuccess(w, counts)
}

// GetLeaderboard returns the all-time leaderboard plus the date of the
// guild's earliest recorded reaction.
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	entries, err := h.service.Leaderboard(r.Context(), guildID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch leaderboard")
		return
	}

	earliest, err := h.service.EarliestUsage(r.Context(), guildID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "Failed to fetch leaderboard")
		return
	}

	utils.RespondSuccess(w, map[string]any{
		"entries":  entries,
		"earliest": earliest,
	})
}
