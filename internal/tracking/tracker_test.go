package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/dayplanner/internal/database"
	"github.com/iliyamo/dayplanner/internal/jira"
	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/repository"
)

type fakeWorklogs struct {
	err   error
	calls []jira.Worklog
	keys  []string
}

func (f *fakeWorklogs) AddWorklog(_ context.Context, _, key string, w jira.Worklog) (json.RawMessage, error) {
	f.calls = append(f.calls, w)
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"id":"1"}`), nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTracker(t *testing.T, wl WorklogPoster) (*Tracker, *repository.SettingsRepo, *repository.TimeEntryRepo, *clock) {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(context.Background(), db, database.SQLite); err != nil {
		t.Fatal(err)
	}
	entries := repository.NewTimeEntryRepo(db)
	settings := repository.NewSettingsRepo(db)
	clk := &clock{t: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	tr := NewTracker(entries, settings, wl)
	tr.now = clk.now
	return tr, settings, entries, clk
}

func key(s string) *string { return &s }

func TestStartOpenStop(t *testing.T) {
	tr, _, _, clk := newTracker(t, nil)
	ctx := context.Background()

	if e, err := tr.Open(ctx, "u1", "", nil); e != nil || err != nil {
		t.Fatalf("open on empty = %v, %v", e, err)
	}
	started, err := tr.Start(ctx, "u1", "", key(""))
	if err != nil {
		t.Fatal(err)
	}
	if started.SourceType != model.SourceCustom || started.SourceID != nil {
		t.Fatalf("started = %+v", started)
	}
	open, err := tr.Open(ctx, "u1", model.SourceCustom, nil)
	if err != nil || open == nil || open.ID != started.ID {
		t.Fatalf("open = %+v, %v", open, err)
	}

	clk.t = clk.t.Add(45 * time.Minute)
	stopped, err := tr.Stop(ctx, "u1", model.SourceCustom, nil)
	if err != nil {
		t.Fatal(err)
	}
	if stopped.EndedAt == nil || stopped.EndedAt.Sub(stopped.StartedAt) != 45*time.Minute {
		t.Fatalf("stopped = %+v", stopped)
	}
	if _, err := tr.Stop(ctx, "u1", model.SourceCustom, nil); !errors.Is(err, repository.ErrNoOpenEntry) {
		t.Fatalf("second stop err = %v", err)
	}
}

func TestStopClosesMostRecentOpenEntry(t *testing.T) {
	tr, _, entries, clk := newTracker(t, nil)
	ctx := context.Background()
	first, _ := tr.Start(ctx, "u1", model.SourceJira, key("ABC-1"))
	clk.t = clk.t.Add(time.Minute)
	second, _ := tr.Start(ctx, "u1", model.SourceJira, key("ABC-1"))

	clk.t = clk.t.Add(time.Minute)
	stopped, err := tr.Stop(ctx, "u1", model.SourceJira, key("ABC-1"))
	if err != nil || stopped.ID != second.ID {
		t.Fatalf("stopped = %+v, %v", stopped, err)
	}
	still, _ := entries.Get(ctx, first.ID)
	if !still.IsOpen() {
		t.Fatal("older entry was closed")
	}
}

func TestStopAndWorklogPushed(t *testing.T) {
	wl := &fakeWorklogs{}
	tr, settings, entries, clk := newTracker(t, wl)
	ctx := context.Background()
	if _, err := settings.Apply(ctx, "u1", model.SettingsPatch{DefaultWorklogCommentTemplate: key("Worked on {issue}")}); err != nil {
		t.Fatal(err)
	}

	tr.Start(ctx, "u1", model.SourceJira, key("ABC-1"))
	clk.t = clk.t.Add(90 * time.Minute)
	res, err := tr.StopAndWorklog(ctx, "u1", model.SourceJira, key("ABC-1"), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Worklog != WorklogPushed || res.PushedAt == nil {
		t.Fatalf("result = %+v", res)
	}
	if len(wl.calls) != 1 || wl.keys[0] != "ABC-1" || wl.calls[0].Comment != "Worked on ABC-1" || wl.calls[0].Seconds() != 5400 {
		t.Fatalf("worklog calls = %+v", wl.calls)
	}
	stored, _ := entries.Get(ctx, res.Entry.ID)
	if stored.PushedToJiraAt == nil {
		t.Fatal("pushed_to_jira_at not stored")
	}
}

func TestStopAndWorklogExplicitComment(t *testing.T) {
	wl := &fakeWorklogs{}
	tr, _, _, _ := newTracker(t, wl)
	ctx := context.Background()
	tr.Start(ctx, "u1", model.SourceJira, key("ABC-2"))
	if _, err := tr.StopAndWorklog(ctx, "u1", model.SourceJira, key("ABC-2"), "pairing"); err != nil {
		t.Fatal(err)
	}
	if wl.calls[0].Comment != "pairing" {
		t.Fatalf("comment = %q", wl.calls[0].Comment)
	}
}

func TestStopAndWorklogFailureStillStops(t *testing.T) {
	wl := &fakeWorklogs{err: &jira.APIError{Op: "worklog", Status: 401}}
	tr, _, entries, _ := newTracker(t, wl)
	ctx := context.Background()
	tr.Start(ctx, "u1", model.SourceJira, key("ABC-1"))

	res, err := tr.StopAndWorklog(ctx, "u1", model.SourceJira, key("ABC-1"), "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Worklog != WorklogFailed || res.Message == "" {
		t.Fatalf("result = %+v", res)
	}
	stored, _ := entries.Get(ctx, res.Entry.ID)
	if stored.IsOpen() || stored.PushedToJiraAt != nil {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestStopAndWorklogSkipsNonJira(t *testing.T) {
	wl := &fakeWorklogs{}
	tr, _, _, _ := newTracker(t, wl)
	ctx := context.Background()
	tr.Start(ctx, "u1", model.SourceCustom, nil)
	res, err := tr.StopAndWorklog(ctx, "u1", model.SourceCustom, nil, "")
	if err != nil || res.Worklog != WorklogSkipped || len(wl.calls) != 0 {
		t.Fatalf("result = %+v, %v, calls = %d", res, err, len(wl.calls))
	}
	if _, err := tr.StopAndWorklog(ctx, "u1", model.SourceCustom, nil, ""); !errors.Is(err, repository.ErrNoOpenEntry) {
		t.Fatalf("err = %v", err)
	}
}
