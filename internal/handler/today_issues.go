package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/repository"
)

// TodayIssueStore is implemented by *repository.TodayIssueRepo.
type TodayIssueStore interface {
	List(ctx context.Context, userID string) ([]model.TodayIssue, error)
	Add(ctx context.Context, userID, issueKey string, notes *string) (*model.TodayIssue, error)
	Remove(ctx context.Context, userID, issueKey string) error
	Reorder(ctx context.Context, userID string, order []string) error
}

// TodayIssueHandler serves the user's ordered list of Jira issues for
// today.
type TodayIssueHandler struct {
	Issues TodayIssueStore
}

// NewTodayIssueHandler panics when store is nil.
func NewTodayIssueHandler(store TodayIssueStore) *TodayIssueHandler {
	if store == nil {
		panic("nil store passed to NewTodayIssueHandler")
	}
	return &TodayIssueHandler{Issues: store}
}

// List handles GET /v1/jira/today.
func (h *TodayIssueHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	list, err := h.Issues.List(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// Add handles POST /v1/jira/today.  Re-adding an issue only updates its
// notes.
func (h *TodayIssueHandler) Add(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		IssueKey string  `json:"issue_key"`
		Notes    *string `json:"notes"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	key := strings.TrimSpace(body.IssueKey)
	if key == "" {
		return badRequest(c, "issue_key is required")
	}
	ti, err := h.Issues.Add(c.Request().Context(), userID, key, body.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, ti)
}

// Remove handles DELETE /v1/jira/today/:key.
func (h *TodayIssueHandler) Remove(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	if err := h.Issues.Remove(c.Request().Context(), userID, c.Param("key")); err != nil {
		return h.notFoundOr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Reorder handles PUT /v1/jira/today/order with {"order": [keys...]}.
// The first key gets index 1.
func (h *TodayIssueHandler) Reorder(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		Order []string `json:"order"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if len(body.Order) == 0 {
		return badRequest(c, "order is required")
	}
	seen := make(map[string]bool, len(body.Order))
	for _, k := range body.Order {
		if k == "" || seen[k] {
			return badRequest(c, "order must list distinct issue keys")
		}
		seen[k] = true
	}
	if err := h.Issues.Reorder(c.Request().Context(), userID, body.Order); err != nil {
		return h.notFoundOr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *TodayIssueHandler) notFoundOr(c echo.Context, err error) error {
	if errors.Is(err, repository.ErrTodayIssueNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "issue not on today list"})
	}
	return writeError(c, err)
}
