package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dayplanner/internal/calendar"
	"github.com/iliyamo/dayplanner/internal/config"
	"github.com/iliyamo/dayplanner/internal/database"
	"github.com/iliyamo/dayplanner/internal/handler"
	"github.com/iliyamo/dayplanner/internal/jira"
	"github.com/iliyamo/dayplanner/internal/middleware"
	"github.com/iliyamo/dayplanner/internal/oauth"
	"github.com/iliyamo/dayplanner/internal/repository"
	"github.com/iliyamo/dayplanner/internal/schedule"
	"github.com/iliyamo/dayplanner/internal/stats"
	"github.com/iliyamo/dayplanner/internal/tracking"
	"github.com/iliyamo/dayplanner/internal/utils"
)

const secret = "router-secret"

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(context.Background(), db, database.SQLite); err != nil {
		t.Fatal(err)
	}

	accounts := repository.NewAccountRepo(db, nil)
	settings := repository.NewSettingsRepo(db)
	entries := repository.NewTimeEntryRepo(db)
	today := repository.NewTodayRepo(db)
	statsSvc := stats.NewService(repository.NewStatsRepo(db), entries, today)

	providers := oauth.Providers{}
	engine := oauth.NewEngine(accounts, providers, nil)
	jiraClient := jira.NewClient(engine, nil, "http://127.0.0.1:1")
	calendars := calendar.NewRegistry()

	h := Handlers{
		Accounts: handler.NewAccountHandler(accounts, oauth.NewConnector(accounts, providers, "http://localhost", secret, nil)).WithInit(calendars, jiraClient),
		Calendar: handler.NewCalendarHandler(calendars, settings),
		Schedule: handler.NewScheduleHandler(schedule.NewCoordinator(repository.NewScheduleRepo(db), calendars, nil)),
		Time:     handler.NewTimeHandler(tracking.NewTracker(entries, settings, jiraClient), settings, statsSvc),
		Stats:    handler.NewStatsHandler(statsSvc),
		Today:    handler.NewTodayHandler(today, statsSvc),
		Settings: handler.NewSettingsHandler(settings),
		Jira:     handler.NewJiraHandler(jiraClient),

		TodayIssues: handler.NewTodayIssueHandler(repository.NewTodayIssueRepo(db)),
	}
	e := echo.New()
	RegisterRoutes(e, db, h.Accounts)
	RegisterAPI(e, h, secret,
		middleware.NewTokenBucket(config.RateLimitConfig{}, nil),
		middleware.NewRedisCache(config.CacheConfig{}, nil))
	return e
}

func call(t *testing.T, e *echo.Echo, method, target, body, user string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != "" {
		tok, err := utils.NewAccessToken(secret, user, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoutesRegistered(t *testing.T) {
	e := newServer(t)
	have := map[string]bool{}
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"GET /oauth/:provider/callback",
		"GET /v1/connections",
		"DELETE /v1/connections/:provider",
		"GET /v1/connect/:provider",
		"GET /v1/calendar/events",
		"GET /v1/calendar/range",
		"POST /v1/calendar/:provider/events",
		"PATCH /v1/calendar/:provider/events/:id",
		"DELETE /v1/calendar/:provider/events/:id",
		"GET /v1/schedule",
		"POST /v1/schedule",
		"PATCH /v1/schedule/:id",
		"DELETE /v1/schedule/:id",
		"POST /v1/time/start",
		"POST /v1/time/stop",
		"POST /v1/time/stop-and-worklog",
		"GET /v1/time/open",
		"GET /v1/stats/workday",
		"DELETE /v1/stats/workday",
		"GET /v1/today",
		"POST /v1/today",
		"DELETE /v1/today",
		"GET /v1/settings",
		"PATCH /v1/settings",
		"GET /v1/jira/projects",
		"GET /v1/jira/dashboards",
		"GET /v1/jira/search",
		"POST /v1/jira/issue/:key/comment",
		"POST /v1/jira/issue/:key/worklog",
		"PUT /v1/jira/issue/:key/description",
		"GET /v1/connections/:provider/init",
		"GET /v1/jira/today",
		"POST /v1/jira/today",
		"PUT /v1/jira/today/order",
		"DELETE /v1/jira/today/:key",
	} {
		if !have[want] {
			t.Errorf("route %s not registered", want)
		}
	}
}

func TestPublicAndProtected(t *testing.T) {
	e := newServer(t)
	if rec := call(t, e, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	if rec := call(t, e, http.MethodGet, "/v1/settings", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous settings = %d", rec.Code)
	}
	rec := call(t, e, http.MethodGet, "/v1/settings", "", "u1")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"google_months_before":1`) {
		t.Fatalf("settings = %d %s", rec.Code, rec.Body)
	}
}

func TestTrackingFlow(t *testing.T) {
	e := newServer(t)
	rec := call(t, e, http.MethodPost, "/v1/time/start", `{"source_type":"custom"}`, "u1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("start = %d %s", rec.Code, rec.Body)
	}
	rec = call(t, e, http.MethodGet, "/v1/time/open?sourceType=custom", "", "u1")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), `"entry":null`) {
		t.Fatalf("open = %d %s", rec.Code, rec.Body)
	}
	// another user sees nothing running
	rec = call(t, e, http.MethodGet, "/v1/time/open?sourceType=custom", "", "u2")
	if !strings.Contains(rec.Body.String(), `"entry":null`) {
		t.Fatalf("u2 open = %s", rec.Body)
	}
	rec = call(t, e, http.MethodPost, "/v1/time/stop", `{"source_type":"custom"}`, "u1")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"worklog":"skipped"`) {
		t.Fatalf("stop = %d %s", rec.Code, rec.Body)
	}
	rec = call(t, e, http.MethodPost, "/v1/time/stop", `{"source_type":"custom"}`, "u1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second stop = %d", rec.Code)
	}
}

func TestScheduleLocalOnly(t *testing.T) {
	e := newServer(t)
	rec := call(t, e, http.MethodPost, "/v1/schedule",
		`{"title":"Plan","start":"2025-06-02T09:00:00Z","end":"2025-06-02T10:00:00Z","mirror_to":"google"}`, "u1")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body)
	}
	// no google calendar is configured, so the mirror fails but the block exists
	if !strings.Contains(rec.Body.String(), `"state":"failed"`) {
		t.Fatalf("create body = %s", rec.Body)
	}
	rec = call(t, e, http.MethodGet, "/v1/schedule?date=2025-06-02", "", "u1")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"title":"Plan"`) {
		t.Fatalf("list = %d %s", rec.Code, rec.Body)
	}
}

func TestJiraUnlinked(t *testing.T) {
	e := newServer(t)
	rec := call(t, e, http.MethodGet, "/v1/jira/projects", "", "u1")
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "provider_not_linked") {
		t.Fatalf("projects = %d %s", rec.Code, rec.Body)
	}
}

func TestTodayIssuesFlow(t *testing.T) {
	e := newServer(t)
	for _, key := range []string{"ABC-1", "ABC-2"} {
		rec := call(t, e, http.MethodPost, "/v1/jira/today", `{"issue_key":"`+key+`"}`, "u1")
		if rec.Code != http.StatusOK {
			t.Fatalf("add %s = %d %s", key, rec.Code, rec.Body)
		}
	}
	rec := call(t, e, http.MethodPut, "/v1/jira/today/order", `{"order":["ABC-2","ABC-1"]}`, "u1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("reorder = %d %s", rec.Code, rec.Body)
	}
	rec = call(t, e, http.MethodGet, "/v1/jira/today", "", "u1")
	body := rec.Body.String()
	if rec.Code != http.StatusOK || strings.Index(body, "ABC-2") > strings.Index(body, "ABC-1") {
		t.Fatalf("list = %d %s", rec.Code, body)
	}
	rec = call(t, e, http.MethodDelete, "/v1/jira/today/ABC-1", "", "u1")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove = %d", rec.Code)
	}
	rec = call(t, e, http.MethodPut, "/v1/jira/today/order", `{"order":["ABC-1"]}`, "u1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("reorder removed issue = %d", rec.Code)
	}
}

func TestConnectionInitJiraUnlinked(t *testing.T) {
	e := newServer(t)
	rec := call(t, e, http.MethodGet, "/v1/connections/atlassian/init", "", "u1")
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "provider_not_linked") {
		t.Fatalf("init = %d %s", rec.Code, rec.Body)
	}
	// no calendar adapters are registered in this server
	rec = call(t, e, http.MethodGet, "/v1/connections/google/init", "", "u1")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "No init for provider") {
		t.Fatalf("google init = %d %s", rec.Code, rec.Body)
	}
}
