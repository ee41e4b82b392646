package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/dayplanner/internal/handler"    // import the handlers that implement the API
	"github.com/iliyamo/dayplanner/internal/middleware" // import middleware for JWT authentication
)

// Handlers bundles every handler the API serves.
type Handlers struct {
	Accounts *handler.AccountHandler
	Calendar *handler.CalendarHandler
	Schedule *handler.ScheduleHandler
	Time     *handler.TimeHandler
	Stats    *handler.StatsHandler
	Today    *handler.TodayHandler
	Settings *handler.SettingsHandler
	Jira     *handler.JiraHandler

	TodayIssues *handler.TodayIssueHandler
}

// RegisterRoutes registers routes that do not require authentication: the
// health check and the OAuth redirect target.  The callback is
// authenticated by its signed state parameter instead of a bearer token.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, a *handler.AccountHandler) {
	e.GET("/healthz", handler.Health(db))
	e.GET("/oauth/:provider/callback", a.Callback)
}

// RegisterAPI registers the /v1 group.  Every route requires a bearer
// token; limiter runs after authentication so buckets are per user, and
// cache wraps only the slow Jira listings.
func RegisterAPI(e *echo.Echo, h Handlers, jwtSecret string, limiter, cache echo.MiddlewareFunc) {
	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(jwtSecret))
	v1.Use(limiter)

	v1.GET("/connections", h.Accounts.ListConnections)
	v1.DELETE("/connections/:provider", h.Accounts.Disconnect)
	v1.GET("/connections/:provider/init", h.Accounts.Init)
	v1.GET("/connect/:provider", h.Accounts.StartConnect)

	v1.GET("/calendar/events", h.Calendar.Events)
	v1.GET("/calendar/range", h.Calendar.Range)
	v1.POST("/calendar/:provider/events", h.Calendar.CreateEvent)
	v1.PATCH("/calendar/:provider/events/:id", h.Calendar.UpdateEvent)
	v1.DELETE("/calendar/:provider/events/:id", h.Calendar.DeleteEvent)

	v1.GET("/schedule", h.Schedule.List)
	v1.POST("/schedule", h.Schedule.Create)
	v1.PATCH("/schedule/:id", h.Schedule.Update)
	v1.DELETE("/schedule/:id", h.Schedule.Delete)

	v1.POST("/time/start", h.Time.Start)
	v1.POST("/time/stop", h.Time.Stop)
	v1.POST("/time/stop-and-worklog", h.Time.StopAndWorklog)
	v1.GET("/time/open", h.Time.Open)

	v1.GET("/stats/workday", h.Stats.Workday)
	v1.DELETE("/stats/workday", h.Stats.Invalidate)

	v1.GET("/today", h.Today.List)
	v1.POST("/today", h.Today.Add)
	v1.DELETE("/today", h.Today.Remove)

	v1.GET("/settings", h.Settings.Get)
	v1.PATCH("/settings", h.Settings.Update)

	v1.GET("/jira/projects", h.Jira.Projects, cache)
	v1.GET("/jira/dashboards", h.Jira.Dashboards, cache)
	v1.GET("/jira/search", h.Jira.Search)
	v1.POST("/jira/issue/:key/comment", h.Jira.Comment)
	v1.POST("/jira/issue/:key/worklog", h.Jira.Worklog)
	v1.PUT("/jira/issue/:key/description", h.Jira.Description)

	v1.GET("/jira/today", h.TodayIssues.List)
	v1.POST("/jira/today", h.TodayIssues.Add)
	v1.PUT("/jira/today/order", h.TodayIssues.Reorder)
	v1.DELETE("/jira/today/:key", h.TodayIssues.Remove)
}
