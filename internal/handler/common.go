package handler // handler defines http handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/iliyamo/dayplanner/internal/calendar"
	"github.com/iliyamo/dayplanner/internal/jira"
	"github.com/iliyamo/dayplanner/internal/middleware"
	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/oauth"
	"github.com/iliyamo/dayplanner/internal/repository"
	"github.com/iliyamo/dayplanner/internal/stats"
	"github.com/iliyamo/dayplanner/internal/utils"
)

const dateLayout = "2006-01-02"

var errUnauthorized = errors.New("missing user in context")

// getUserID returns the authenticated user id set by middleware.JWTAuth.
func getUserID(c echo.Context) (string, error) {
	if id := middleware.UserID(c); id != "" {
		return id, nil
	}
	return "", errUnauthorized
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// dateParam reads ?date=YYYY-MM-DD, defaulting to today in UTC.
func dateParam(c echo.Context, now time.Time) (string, bool) {
	d := strings.TrimSpace(c.QueryParam("date"))
	if d == "" {
		return now.UTC().Format(dateLayout), true
	}
	if _, err := time.Parse(dateLayout, d); err != nil {
		return "", false
	}
	return d, true
}

// providerParam parses the :provider path segment.
func providerParam(c echo.Context) (model.Provider, bool) {
	return model.ParseProvider(strings.ToLower(c.Param("provider")))
}

// optString turns "" into nil.
func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// writeError maps service errors to JSON responses.  Upstream 4xx
// statuses are kept so clients can tell a revoked grant from a bad
// request; calendar 5xx and transport failures become 502.
func writeError(c echo.Context, err error) error {
	var jiraErr *jira.APIError
	var calErr *calendar.UpstreamError
	var exchangeErr *oauth2.RetrieveError
	switch {
	case errors.Is(err, oauth.ErrNotLinked):
		return c.JSON(http.StatusConflict, echo.Map{"error": "provider_not_linked"})
	case errors.As(err, &jiraErr):
		return c.JSON(jiraErr.Status, echo.Map{"error": "jira_error", "status": jiraErr.Status, "body": jiraErr.Body})
	case errors.As(err, &calErr):
		status := http.StatusBadGateway
		if calErr.Status >= 400 && calErr.Status < 500 {
			status = calErr.Status
		}
		return c.JSON(status, echo.Map{
			"error":    "calendar_error",
			"provider": calErr.Provider,
			"status":   calErr.Status,
			"body":     calErr.Body,
		})
	case errors.As(err, &exchangeErr):
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "exchange_failed", "code": exchangeErr.ErrorCode})
	case errors.Is(err, jira.ErrNoCloud):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no_jira_site"})
	case errors.Is(err, calendar.ErrBadDate), errors.Is(err, stats.ErrBadDate):
		return badRequest(c, "date must be YYYY-MM-DD")
	case errors.Is(err, utils.ErrInvalidState):
		return badRequest(c, "invalid state")
	case errors.Is(err, oauth.ErrUnknownProvider):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "provider not configured"})
	case errors.Is(err, repository.ErrBlockNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "schedule block not found"})
	case errors.Is(err, repository.ErrNoOpenEntry):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no open time entry"})
	}
	log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
