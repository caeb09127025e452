package stats

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func usageRequest(query string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/usage/by-day"+query, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("guildID", "100")
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestGetUsageByDayRejectsInvertedRange(t *testing.T) {
	h := NewHandler(nil)

	rec := httptest.NewRecorder()
	h.GetUsageByDay(rec, usageRequest("?start=2000&end=1000"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "end must be after start")
}

func TestGetUsageByDayRejectsEqualRange(t *testing.T) {
	h := NewHandler(nil)

	rec := httptest.NewRecorder()
	h.GetUsageByDay(rec, usageRequest("?start=1000&end=1000"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetUsageByDayRejectsMalformedEnd(t *testing.T) {
	// An end bound that parses to a time before the default start is
	// rejected like any other inverted range.
	h := NewHandler(nil)

	rec := httptest.NewRecorder()
	h.GetUsageByDay(rec, usageRequest("?end=-1"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
