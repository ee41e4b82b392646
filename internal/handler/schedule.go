package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/schedule"
)

// ScheduleService is implemented by *schedule.Coordinator.
type ScheduleService interface {
	Create(ctx context.Context, userID string, in schedule.CreateInput) (*model.ScheduleBlock, error)
	Update(ctx context.Context, userID, id string, p model.ScheduleBlockPatch) (*model.ScheduleBlock, error)
	Delete(ctx context.Context, userID, id string) (model.MirrorResult, error)
	ListForDay(ctx context.Context, userID, dateISO string) ([]model.ScheduleBlock, error)
}

// ScheduleHandler serves local schedule blocks.
type ScheduleHandler struct {
	Schedule ScheduleService
	now      func() time.Time
}

// NewScheduleHandler panics when svc is nil.
func NewScheduleHandler(svc ScheduleService) *ScheduleHandler {
	if svc == nil {
		panic("nil schedule service passed to NewScheduleHandler")
	}
	return &ScheduleHandler{Schedule: svc, now: time.Now}
}

// List handles GET /v1/schedule?date=.
func (h *ScheduleHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	date, ok := dateParam(c, h.now())
	if !ok {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	blocks, err := h.Schedule.ListForDay(c.Request().Context(), userID, date)
	if err != nil {
		return writeError(c, err)
	}
	if blocks == nil {
		blocks = []model.ScheduleBlock{}
	}
	return c.JSON(http.StatusOK, echo.Map{"date": date, "blocks": blocks})
}

// Create handles POST /v1/schedule.  A mirror failure is reported inside
// the block's "mirror" field; the request itself still succeeds.
func (h *ScheduleHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		Title      string     `json:"title"`
		Start      *time.Time `json:"start"`
		End        *time.Time `json:"end"`
		SourceType string     `json:"source_type"`
		SourceID   string     `json:"source_id"`
		MirrorTo   string     `json:"mirror_to"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	title := strings.TrimSpace(body.Title)
	if title == "" || body.Start == nil || body.End == nil {
		return badRequest(c, "title, start and end are required")
	}
	if !body.End.After(*body.Start) {
		return badRequest(c, "end must be after start")
	}
	in := schedule.CreateInput{
		Title:      title,
		Start:      *body.Start,
		End:        *body.End,
		SourceType: sourceType(body.SourceType),
		SourceID:   optString(body.SourceID),
	}
	if body.MirrorTo != "" {
		p, ok := model.ParseProvider(strings.ToLower(body.MirrorTo))
		if !ok {
			return badRequest(c, "unknown mirror provider")
		}
		in.MirrorTo = &p
	}
	b, err := h.Schedule.Create(c.Request().Context(), userID, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Update handles PATCH /v1/schedule/:id.
func (h *ScheduleHandler) Update(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		Title *string    `json:"title"`
		Start *time.Time `json:"start"`
		End   *time.Time `json:"end"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Title != nil {
		t := strings.TrimSpace(*body.Title)
		if t == "" {
			return badRequest(c, "title cannot be empty")
		}
		body.Title = &t
	}
	if body.Title == nil && body.Start == nil && body.End == nil {
		return badRequest(c, "nothing to update")
	}
	if body.Start != nil && body.End != nil && !body.End.After(*body.Start) {
		return badRequest(c, "end must be after start")
	}
	patch := model.ScheduleBlockPatch{Title: body.Title, Start: body.Start, End: body.End}
	b, err := h.Schedule.Update(c.Request().Context(), userID, c.Param("id"), patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Delete handles DELETE /v1/schedule/:id.  The local block is always
// removed; "mirror" tells whether the remote copy went with it.
func (h *ScheduleHandler) Delete(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	res, err := h.Schedule.Delete(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": true, "mirror": res})
}

func sourceType(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case model.SourceJira, model.SourceOther:
		return s
	}
	return model.SourceCustom
}
