package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dayplanner/internal/model"
)

// TodayStore is implemented by *repository.TodayRepo.
type TodayStore interface {
	Upsert(ctx context.Context, e *model.TodayEntry) error
	Remove(ctx context.Context, userID, dateISO, kind, sourceID string) error
	ListForDate(ctx context.Context, userID, dateISO, kind string) ([]model.TodayEntry, error)
}

// TodayHandler manages the items pinned to a day.  Calendar items are the
// meetings of the daily stats, so changing them drops that day's cache.
type TodayHandler struct {
	Today TodayStore
	Stats StatsInvalidator
	now   func() time.Time
}

// NewTodayHandler panics when store is nil; stats may be nil.
func NewTodayHandler(store TodayStore, stats StatsInvalidator) *TodayHandler {
	if store == nil {
		panic("nil store passed to NewTodayHandler")
	}
	return &TodayHandler{Today: store, Stats: stats, now: time.Now}
}

func validKind(k string) bool {
	switch k {
	case model.KindCalendar, model.KindSchedule, model.KindJira:
		return true
	}
	return false
}

// List handles GET /v1/today?date=&kind=.
func (h *TodayHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	date, ok := dateParam(c, h.now())
	if !ok {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	kind := strings.ToLower(c.QueryParam("kind"))
	if kind != "" && !validKind(kind) {
		return badRequest(c, "unknown kind")
	}
	entries, err := h.Today.ListForDate(c.Request().Context(), userID, date, kind)
	if err != nil {
		return writeError(c, err)
	}
	if entries == nil {
		entries = []model.TodayEntry{}
	}
	return c.JSON(http.StatusOK, echo.Map{"date": date, "entries": entries})
}

// Add handles POST /v1/today.  Posting the same (date, kind, source_id)
// again replaces the stored item.
func (h *TodayHandler) Add(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		Date     string     `json:"date"`
		Kind     string     `json:"kind"`
		Provider string     `json:"provider"`
		SourceID string     `json:"source_id"`
		Title    string     `json:"title"`
		Start    *time.Time `json:"start"`
		End      *time.Time `json:"end"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Date == "" {
		body.Date = h.now().UTC().Format(dateLayout)
	}
	if _, err := time.Parse(dateLayout, body.Date); err != nil {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	body.Kind = strings.ToLower(body.Kind)
	if !validKind(body.Kind) || strings.TrimSpace(body.SourceID) == "" {
		return badRequest(c, "kind and source_id are required")
	}
	if body.Start != nil && body.End != nil && body.End.Before(*body.Start) {
		return badRequest(c, "end must not be before start")
	}
	e := &model.TodayEntry{
		UserID:   userID,
		DateISO:  body.Date,
		Kind:     body.Kind,
		Provider: optString(body.Provider),
		SourceID: strings.TrimSpace(body.SourceID),
		Title:    strings.TrimSpace(body.Title),
		Start:    body.Start,
		End:      body.End,
	}
	if err := h.Today.Upsert(c.Request().Context(), e); err != nil {
		return writeError(c, err)
	}
	h.invalidate(c, userID, e.DateISO, e.Kind)
	return c.JSON(http.StatusOK, e)
}

// Remove handles DELETE /v1/today?date=&kind=&sourceId=.
func (h *TodayHandler) Remove(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	date, ok := dateParam(c, h.now())
	if !ok {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	kind := strings.ToLower(c.QueryParam("kind"))
	sourceID := strings.TrimSpace(c.QueryParam("sourceId"))
	if !validKind(kind) || sourceID == "" {
		return badRequest(c, "kind and sourceId are required")
	}
	if err := h.Today.Remove(c.Request().Context(), userID, date, kind, sourceID); err != nil {
		return writeError(c, err)
	}
	h.invalidate(c, userID, date, kind)
	return c.NoContent(http.StatusNoContent)
}

func (h *TodayHandler) invalidate(c echo.Context, userID, date, kind string) {
	if h.Stats == nil || kind != model.KindCalendar {
		return
	}
	if err := h.Stats.Invalidate(c.Request().Context(), userID, date); err != nil {
		c.Logger().Warnf("today: invalidate stats user=%s date=%s: %v", userID, date, err)
	}
}
