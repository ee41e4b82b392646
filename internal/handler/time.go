package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/tracking"
)

// TimeTracker is implemented by *tracking.Tracker.
type TimeTracker interface {
	Start(ctx context.Context, userID, sourceType string, sourceID *string) (*model.TimeEntry, error)
	Open(ctx context.Context, userID, sourceType string, sourceID *string) (*model.TimeEntry, error)
	Stop(ctx context.Context, userID, sourceType string, sourceID *string) (*model.TimeEntry, error)
	StopAndWorklog(ctx context.Context, userID, sourceType string, sourceID *string, comment string) (*tracking.StopResult, error)
}

// StatsInvalidator drops cached daily stats.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, userID, dateISO string) error
}

// TimeHandler serves time tracking.  Stopping an entry invalidates the
// cached stats of the days it covers.
type TimeHandler struct {
	Tracker  TimeTracker
	Settings SettingsReader
	Stats    StatsInvalidator
}

// NewTimeHandler panics when tracker is nil; settings and stats may be nil.
func NewTimeHandler(tracker TimeTracker, settings SettingsReader, stats StatsInvalidator) *TimeHandler {
	if tracker == nil {
		panic("nil tracker passed to NewTimeHandler")
	}
	return &TimeHandler{Tracker: tracker, Settings: settings, Stats: stats}
}

type timeBody struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
	Comment    string `json:"comment"`
}

func (h *TimeHandler) bind(c echo.Context) (timeBody, bool) {
	var body timeBody
	if err := c.Bind(&body); err != nil {
		return body, false
	}
	body.SourceType = sourceType(body.SourceType)
	return body, true
}

// Start handles POST /v1/time/start.
func (h *TimeHandler) Start(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	body, ok := h.bind(c)
	if !ok {
		return badRequest(c, "invalid request body")
	}
	e, err := h.Tracker.Start(c.Request().Context(), userID, body.SourceType, optString(body.SourceID))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

// Open handles GET /v1/time/open?sourceType=&sourceId=.  It answers
// {"entry": null} when nothing is running.
func (h *TimeHandler) Open(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	st := sourceType(c.QueryParam("sourceType"))
	e, err := h.Tracker.Open(c.Request().Context(), userID, st, optString(c.QueryParam("sourceId")))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"entry": e})
}

// Stop handles POST /v1/time/stop.  Jira entries of users with
// auto_push_worklog enabled are stopped as by StopAndWorklog.
func (h *TimeHandler) Stop(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	body, ok := h.bind(c)
	if !ok {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()
	if body.SourceType == model.SourceJira && h.autoPush(ctx, userID) {
		return h.stopAndWorklog(c, userID, body)
	}
	e, err := h.Tracker.Stop(ctx, userID, body.SourceType, optString(body.SourceID))
	if err != nil {
		return writeError(c, err)
	}
	h.invalidate(c, e)
	return c.JSON(http.StatusOK, tracking.StopResult{Entry: e, Worklog: tracking.WorklogSkipped})
}

func (h *TimeHandler) autoPush(ctx context.Context, userID string) bool {
	if h.Settings == nil {
		return false
	}
	s, err := h.Settings.Get(ctx, userID)
	return err == nil && s.AutoPushWorklog
}

// StopAndWorklog handles POST /v1/time/stop-and-worklog.  The entry is
// closed even when the worklog cannot be posted; "worklog" reports
// pushed, failed or skipped.
func (h *TimeHandler) StopAndWorklog(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	body, ok := h.bind(c)
	if !ok {
		return badRequest(c, "invalid request body")
	}
	return h.stopAndWorklog(c, userID, body)
}

func (h *TimeHandler) stopAndWorklog(c echo.Context, userID string, body timeBody) error {
	res, err := h.Tracker.StopAndWorklog(c.Request().Context(), userID, body.SourceType, optString(body.SourceID), body.Comment)
	if err != nil {
		return writeError(c, err)
	}
	h.invalidate(c, res.Entry)
	return c.JSON(http.StatusOK, res)
}

func (h *TimeHandler) invalidate(c echo.Context, e *model.TimeEntry) {
	if h.Stats == nil || e == nil {
		return
	}
	first := e.StartedAt.UTC().Truncate(24 * time.Hour)
	last := first
	if e.EndedAt != nil && e.EndedAt.After(e.StartedAt) {
		last = e.EndedAt.UTC().Truncate(24 * time.Hour)
	}
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		d := day.Format(dateLayout)
		if err := h.Stats.Invalidate(c.Request().Context(), e.UserID, d); err != nil {
			c.Logger().Warnf("time: invalidate stats user=%s date=%s: %v", e.UserID, d, err)
		}
	}
}
