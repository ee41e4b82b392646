package handler

import (
	"context"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dayplanner/internal/calendar"
	"github.com/iliyamo/dayplanner/internal/model"
)

// SettingsReader loads per-user preferences.
type SettingsReader interface {
	Get(ctx context.Context, userID string) (model.Settings, error)
}

// CalendarHandler exposes the provider calendars directly.
type CalendarHandler struct {
	Calendars calendar.Registry
	Settings  SettingsReader
	now       func() time.Time
}

// NewCalendarHandler panics when a dependency is missing.
func NewCalendarHandler(calendars calendar.Registry, settings SettingsReader) *CalendarHandler {
	if calendars == nil || settings == nil {
		panic("nil dependency passed to NewCalendarHandler")
	}
	return &CalendarHandler{Calendars: calendars, Settings: settings, now: time.Now}
}

func (h *CalendarHandler) adapter(c echo.Context) (calendar.Adapter, bool) {
	p, ok := providerParam(c)
	if !ok {
		return nil, false
	}
	a, ok := h.Calendars[p]
	return a, ok
}

// Events handles GET /v1/calendar/events?date=&provider=.  Without a
// provider (or with "both") every calendar is queried and a failing one
// contributes an empty list instead of failing the request.
func (h *CalendarHandler) Events(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	date, ok := dateParam(c, h.now())
	if !ok {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	ctx := c.Request().Context()

	if name := strings.ToLower(c.QueryParam("provider")); name != "" && name != "both" {
		p, ok := model.ParseProvider(name)
		a, has := h.Calendars[p]
		if !ok || !has {
			return badRequest(c, "unknown calendar provider")
		}
		events, err := a.ListForDay(ctx, userID, date)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"date": date, "events": nonNil(events)})
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		all = []model.Event{}
	)
	for p, a := range h.Calendars {
		wg.Add(1)
		go func(p model.Provider, a calendar.Adapter) {
			defer wg.Done()
			events, err := a.ListForDay(ctx, userID, date)
			if err != nil {
				log.Printf("calendar: %s list for user=%s date=%s failed: %v", p, userID, date, err)
				return
			}
			mu.Lock()
			all = append(all, events...)
			mu.Unlock()
		}(p, a)
	}
	wg.Wait()
	sortEvents(all)
	return c.JSON(http.StatusOK, echo.Map{"date": date, "events": all})
}

// Range handles GET /v1/calendar/range?provider=.  The window spans the
// user's months-before/after settings for that provider around now.
func (h *CalendarHandler) Range(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	p, ok := model.ParseProvider(strings.ToLower(c.QueryParam("provider")))
	a, has := h.Calendars[p]
	if !ok || !has {
		return badRequest(c, "unknown calendar provider")
	}
	ctx := c.Request().Context()
	s, err := h.Settings.Get(ctx, userID)
	if err != nil {
		return writeError(c, err)
	}
	before, after := s.MonthsWindow(p)
	now := h.now().UTC()
	start, end := now.AddDate(0, -before, 0), now.AddDate(0, after, 0)

	events, err := a.ListBetween(ctx, userID, start, end)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"provider": p,
		"start":    start.Format(time.RFC3339),
		"end":      end.Format(time.RFC3339),
		"events":   nonNil(events),
	})
}

type eventBody struct {
	Title *string    `json:"title"`
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// CreateEvent handles POST /v1/calendar/:provider/events.
func (h *CalendarHandler) CreateEvent(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	a, ok := h.adapter(c)
	if !ok {
		return badRequest(c, "unknown calendar provider")
	}
	var body eventBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Title == nil || strings.TrimSpace(*body.Title) == "" || body.Start == nil || body.End == nil {
		return badRequest(c, "title, start and end are required")
	}
	if !body.End.After(*body.Start) {
		return badRequest(c, "end must be after start")
	}
	id, err := a.Create(c.Request().Context(), userID, strings.TrimSpace(*body.Title), *body.Start, *body.End)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id, "provider": a.Provider()})
}

// UpdateEvent handles PATCH /v1/calendar/:provider/events/:id.  Only the
// fields present in the body are sent upstream.
func (h *CalendarHandler) UpdateEvent(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	a, ok := h.adapter(c)
	if !ok {
		return badRequest(c, "unknown calendar provider")
	}
	var body eventBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	patch := calendar.EventPatch{Title: body.Title, Start: body.Start, End: body.End}
	if patch.Empty() {
		return badRequest(c, "nothing to update")
	}
	if body.Start != nil && body.End != nil && !body.End.After(*body.Start) {
		return badRequest(c, "end must be after start")
	}
	if err := a.Update(c.Request().Context(), userID, c.Param("id"), patch); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteEvent handles DELETE /v1/calendar/:provider/events/:id.
func (h *CalendarHandler) DeleteEvent(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	a, ok := h.adapter(c)
	if !ok {
		return badRequest(c, "unknown calendar provider")
	}
	if err := a.Delete(c.Request().Context(), userID, c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func nonNil(events []model.Event) []model.Event {
	if events == nil {
		return []model.Event{}
	}
	return events
}

// sortEvents orders events by start instant.  All-day events (plain dates)
// sort at midnight UTC of their day.
func sortEvents(events []model.Event) {
	key := func(e model.Event) time.Time {
		if t, err := time.Parse(time.RFC3339, e.Start); err == nil {
			return t
		}
		t, _ := time.Parse(dateLayout, e.Start)
		return t
	}
	sort.SliceStable(events, func(i, j int) bool {
		ki, kj := key(events[i]), key(events[j])
		if ki.Equal(kj) {
			return events[i].Provider < events[j].Provider
		}
		return ki.Before(kj)
	})
}
