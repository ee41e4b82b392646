package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dayplanner/internal/jira"
)

// JiraAPI is implemented by *jira.Client.
type JiraAPI interface {
	Search(ctx context.Context, userID string, req jira.SearchRequest) (json.RawMessage, error)
	AddComment(ctx context.Context, userID, key, text string) (json.RawMessage, error)
	UpdateDescription(ctx context.Context, userID, key, text string) error
	AddWorklog(ctx context.Context, userID, key string, w jira.Worklog) (json.RawMessage, error)
	ListProjects(ctx context.Context, userID string) ([]jira.Project, error)
	ListDashboards(ctx context.Context, userID string) ([]jira.Dashboard, error)
}

// JiraHandler proxies the user's Jira site.  Jira's own status and body
// are passed back on failure.
type JiraHandler struct {
	Jira JiraAPI
}

// NewJiraHandler panics when client is nil.
func NewJiraHandler(client JiraAPI) *JiraHandler {
	if client == nil {
		panic("nil jira client passed to NewJiraHandler")
	}
	return &JiraHandler{Jira: client}
}

// Projects handles GET /v1/jira/projects.
func (h *JiraHandler) Projects(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	projects, err := h.Jira.ListProjects(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, projects)
}

// Dashboards handles GET /v1/jira/dashboards.
func (h *JiraHandler) Dashboards(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	dashboards, err := h.Jira.ListDashboards(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dashboards)
}

// Search handles GET /v1/jira/search?jql=&maxResults=&fields=.  Jira's
// response is returned as-is.
func (h *JiraHandler) Search(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	req := jira.SearchRequest{JQL: strings.TrimSpace(c.QueryParam("jql"))}
	if s := c.QueryParam("maxResults"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return badRequest(c, "maxResults must be a positive integer")
		}
		req.MaxResults = n
	}
	if s := c.QueryParam("fields"); s != "" {
		for _, f := range strings.Split(s, ",") {
			if f = strings.TrimSpace(f); f != "" {
				req.Fields = append(req.Fields, f)
			}
		}
	}
	out, err := h.Jira.Search(c.Request().Context(), userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSONBlob(http.StatusOK, out)
}

type textBody struct {
	Text string `json:"text"`
}

// Comment handles POST /v1/jira/issue/:key/comment.
func (h *JiraHandler) Comment(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body textBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(body.Text) == "" {
		return badRequest(c, "text is required")
	}
	out, err := h.Jira.AddComment(c.Request().Context(), userID, c.Param("key"), body.Text)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSONBlob(http.StatusCreated, out)
}

// Description handles PUT /v1/jira/issue/:key/description.  An empty text
// clears the description.
func (h *JiraHandler) Description(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body textBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.Jira.UpdateDescription(c.Request().Context(), userID, c.Param("key"), body.Text); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Worklog handles POST /v1/jira/issue/:key/worklog.  The body gives
// either started+ended or started+time_spent_seconds.  Jira judges the
// duration, as it does for worklogs pushed on stop.
func (h *JiraHandler) Worklog(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		Started          *time.Time `json:"started"`
		Ended            *time.Time `json:"ended"`
		TimeSpentSeconds int64      `json:"time_spent_seconds"`
		Comment          string     `json:"comment"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Started == nil {
		return badRequest(c, "started is required")
	}
	w := jira.Worklog{Started: *body.Started, Comment: body.Comment}
	switch {
	case body.Ended != nil:
		w.Ended = *body.Ended
	case body.TimeSpentSeconds > 0:
		w.Ended = body.Started.Add(time.Duration(body.TimeSpentSeconds) * time.Second)
	default:
		return badRequest(c, "ended or time_spent_seconds is required")
	}
	out, err := h.Jira.AddWorklog(c.Request().Context(), userID, c.Param("key"), w)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSONBlob(http.StatusCreated, out)
}
