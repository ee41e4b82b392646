package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"log" // Logging library
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"                    // Echo web framework
	echomw "github.com/labstack/echo/v4/middleware" // request logging and panic recovery

	"github.com/iliyamo/dayplanner/internal/calendar"
	"github.com/iliyamo/dayplanner/internal/config" // Internal config loader
	"github.com/iliyamo/dayplanner/internal/database"
	"github.com/iliyamo/dayplanner/internal/handler"
	"github.com/iliyamo/dayplanner/internal/jira"
	"github.com/iliyamo/dayplanner/internal/middleware"
	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/oauth"
	"github.com/iliyamo/dayplanner/internal/repository"
	"github.com/iliyamo/dayplanner/internal/router" // Internal router setup
	"github.com/iliyamo/dayplanner/internal/schedule"
	queue_publisher "github.com/iliyamo/dayplanner/internal/service"
	"github.com/iliyamo/dayplanner/internal/stats"
	"github.com/iliyamo/dayplanner/internal/tracking"
	"github.com/iliyamo/dayplanner/internal/utils"
)

func main() {
	cfg := config.Load() // Load environment config

	db, dialect, err := openDB(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(context.Background(), db, dialect); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	var cipher *utils.TokenCipher
	if cfg.TokenEncryptionKey != "" {
		if cipher, err = utils.NewTokenCipher(cfg.TokenEncryptionKey); err != nil {
			log.Fatalf("TOKEN_ENCRYPTION_KEY: %v", err)
		}
	} else {
		log.Printf("warning: TOKEN_ENCRYPTION_KEY not set, provider tokens are stored unencrypted")
	}

	httpClient := &http.Client{Timeout: cfg.HTTPClientTimeout}
	providers := buildProviders(cfg.OAuth)

	accounts := repository.NewAccountRepo(db, cipher)
	settings := repository.NewSettingsRepo(db)
	entries := repository.NewTimeEntryRepo(db)
	today := repository.NewTodayRepo(db)

	engine := oauth.NewEngine(accounts, providers, httpClient)
	calendars := calendar.NewRegistry(
		calendar.NewGoogleAdapter(engine, httpClient, ""),
		calendar.NewMicrosoftAdapter(engine, httpClient, ""),
	)
	jiraClient := jira.NewClient(engine, httpClient, "")

	var events schedule.Publisher
	if cfg.MirrorEventsEnabled {
		events = queue_publisher.NewMirrorPublisher(cfg.AMQPURL)
	}
	statsSvc := stats.NewService(repository.NewStatsRepo(db), entries, today)

	h := router.Handlers{
		Accounts: handler.NewAccountHandler(accounts, oauth.NewConnector(accounts, providers, cfg.OAuth.RedirectBaseURL, cfg.JWTSecret, httpClient)).WithInit(calendars, jiraClient),
		Calendar: handler.NewCalendarHandler(calendars, settings),
		Schedule: handler.NewScheduleHandler(schedule.NewCoordinator(repository.NewScheduleRepo(db), calendars, events)),
		Time:     handler.NewTimeHandler(tracking.NewTracker(entries, settings, jiraClient), settings, statsSvc),
		Stats:    handler.NewStatsHandler(statsSvc),
		Today:    handler.NewTodayHandler(today, statsSvc),
		Settings: handler.NewSettingsHandler(settings),
		Jira:     handler.NewJiraHandler(jiraClient),

		TodayIssues: handler.NewTodayIssueHandler(repository.NewTodayIssueRepo(db)),
	}

	rdb := config.NewRedisClient(config.RedisOptions()) // nil when Redis is down; middlewares pass through
	if rdb != nil {
		defer rdb.Close()
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Logger(), echomw.Recover())
	router.RegisterRoutes(e, db, h.Accounts)
	router.RegisterAPI(e, h, cfg.JWTSecret,
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port // Address string with port
	go func() {
		log.Printf("listening on %s (env=%s, db=%s, providers=%d)", addr, cfg.Env, dialect, len(providers))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

func openDB(cfg config.Config) (*sql.DB, database.Dialect, error) {
	if cfg.DBDriver == "sqlite" {
		db, err := database.OpenSQLite(cfg.SQLitePath)
		return db, database.SQLite, err
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	return db, database.MySQL, err
}

// buildProviders registers every provider whose client credentials are
// configured.  The others answer "provider not configured".
func buildProviders(c config.OAuthConfig) oauth.Providers {
	p := oauth.Providers{}
	if c.Google.Configured() {
		p[model.ProviderGoogle] = oauth.GoogleProvider(c.Google.ClientID, c.Google.ClientSecret)
	}
	if c.Microsoft.Configured() {
		p[model.ProviderMicrosoft] = oauth.MicrosoftProvider(c.Microsoft.ClientID, c.Microsoft.ClientSecret, c.MicrosoftTenant)
	}
	if c.Atlassian.Configured() {
		p[model.ProviderAtlassian] = oauth.AtlassianProvider(c.Atlassian.ClientID, c.Atlassian.ClientSecret)
	}
	return p
}
