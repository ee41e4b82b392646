package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dayplanner/internal/model"
)

// WorkdayStats is implemented by *stats.Service.
type WorkdayStats interface {
	Workday(ctx context.Context, userID, dateISO string) (*model.DailyStats, error)
	StatsInvalidator
}

// StatsHandler serves the daily work summary.
type StatsHandler struct {
	Stats WorkdayStats
	now   func() time.Time
}

// NewStatsHandler panics when svc is nil.
func NewStatsHandler(svc WorkdayStats) *StatsHandler {
	if svc == nil {
		panic("nil stats service passed to NewStatsHandler")
	}
	return &StatsHandler{Stats: svc, now: time.Now}
}

// Workday handles GET /v1/stats/workday?date=.
func (h *StatsHandler) Workday(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	date, ok := dateParam(c, h.now())
	if !ok {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	s, err := h.Stats.Workday(c.Request().Context(), userID, date)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Invalidate handles DELETE /v1/stats/workday?date=; the next read
// recomputes.
func (h *StatsHandler) Invalidate(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	date, ok := dateParam(c, h.now())
	if !ok {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	if err := h.Stats.Invalidate(c.Request().Context(), userID, date); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
