package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dayplanner/internal/calendar"
	"github.com/iliyamo/dayplanner/internal/model"
)

// AccountStore is the part of the credential store the API exposes.
type AccountStore interface {
	ListByUser(ctx context.Context, userID string) ([]model.ConnectedAccount, error)
	Delete(ctx context.Context, userID string, provider model.Provider) error
}

// ConnectFlow starts and completes provider consent.
type ConnectFlow interface {
	AuthURL(userID string, p model.Provider) (string, error)
	Complete(ctx context.Context, p model.Provider, state, code string) (*model.ConnectedAccount, error)
}

// CloudResolver is implemented by *jira.Client.
type CloudResolver interface {
	ResolveCloudID(ctx context.Context, userID string) (string, error)
}

// AccountHandler serves the linked-provider endpoints.  Calendars and
// Jira back the post-connect check and may be nil.
type AccountHandler struct {
	Accounts  AccountStore
	Connect   ConnectFlow
	Calendars calendar.Registry
	Jira      CloudResolver
	now       func() time.Time
}

// NewAccountHandler panics when a dependency is missing.
func NewAccountHandler(accounts AccountStore, connect ConnectFlow) *AccountHandler {
	if accounts == nil || connect == nil {
		panic("nil dependency passed to NewAccountHandler")
	}
	return &AccountHandler{Accounts: accounts, Connect: connect, now: time.Now}
}

// WithInit attaches what Init needs to exercise a fresh connection.
func (h *AccountHandler) WithInit(calendars calendar.Registry, jira CloudResolver) *AccountHandler {
	h.Calendars, h.Jira = calendars, jira
	return h
}

// ListConnections handles GET /v1/connections.  Tokens are never part of
// the response.
func (h *AccountHandler) ListConnections(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	accounts, err := h.Accounts.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	if accounts == nil {
		accounts = []model.ConnectedAccount{}
	}
	return c.JSON(http.StatusOK, accounts)
}

// Disconnect handles DELETE /v1/connections/:provider.
func (h *AccountHandler) Disconnect(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	p, ok := providerParam(c)
	if !ok {
		return badRequest(c, "unknown provider")
	}
	if err := h.Accounts.Delete(c.Request().Context(), userID, p); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// StartConnect handles GET /v1/connect/:provider and returns the consent
// URL the client should open.
func (h *AccountHandler) StartConnect(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	p, ok := providerParam(c)
	if !ok {
		return badRequest(c, "unknown provider")
	}
	u, err := h.Connect.AuthURL(userID, p)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"provider": p, "url": u})
}

// Callback handles GET /oauth/:provider/callback.  The route is public;
// the signed state identifies the user.
func (h *AccountHandler) Callback(c echo.Context) error {
	p, ok := providerParam(c)
	if !ok {
		return badRequest(c, "unknown provider")
	}
	if denied := c.QueryParam("error"); denied != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":       "consent_denied",
			"reason":      denied,
			"description": c.QueryParam("error_description"),
		})
	}
	state, code := c.QueryParam("state"), c.QueryParam("code")
	if state == "" || code == "" {
		return badRequest(c, "state and code are required")
	}
	acc, err := h.Connect.Complete(c.Request().Context(), p, state, code)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, acc)
}

// Init handles GET /v1/connections/:provider/init, run by clients right
// after a connect.  Calendar providers fetch today's events to warm the
// token; failures there are logged, not returned.  Atlassian must resolve
// a Jira site, so a grant without one is reported.
func (h *AccountHandler) Init(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	p, ok := providerParam(c)
	if !ok {
		return badRequest(c, "unknown provider")
	}
	ctx := c.Request().Context()

	if p == model.ProviderAtlassian {
		if h.Jira == nil {
			return c.JSON(http.StatusOK, echo.Map{"ok": true, "message": "No init for provider"})
		}
		cloudID, err := h.Jira.ResolveCloudID(ctx, userID)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"ok": true, "message": "Jira account connected", "cloud_id": cloudID})
	}

	adapter, ok := h.Calendars[p]
	if !ok {
		return c.JSON(http.StatusOK, echo.Map{"ok": true, "message": "No init for provider"})
	}
	today := h.now().UTC().Format(dateLayout)
	resp := echo.Map{"ok": true, "message": "Fetched " + string(p) + " calendar for today"}
	events, err := adapter.ListForDay(ctx, userID, today)
	if err != nil {
		log.Printf("handler: init %s user=%s: %v", p, userID, err)
	} else {
		resp["events"] = len(events)
	}
	return c.JSON(http.StatusOK, resp)
}
