// Package tracking starts and stops time entries and pushes finished Jira
// entries to the issue's worklog.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/iliyamo/dayplanner/internal/jira"
	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/repository"
)

// EntryStore persists time entries.
type EntryStore interface {
	Start(ctx context.Context, userID, sourceType string, sourceID *string, startedAt time.Time) (*model.TimeEntry, error)
	FindOpen(ctx context.Context, userID, sourceType string, sourceID *string) (*model.TimeEntry, error)
	Close(ctx context.Context, id string, endedAt time.Time) (*model.TimeEntry, error)
	MarkPushed(ctx context.Context, id string, at time.Time) error
}

// SettingsReader supplies the user's worklog comment template.
type SettingsReader interface {
	Get(ctx context.Context, userID string) (model.Settings, error)
}

// WorklogPoster posts worklogs to Jira.
type WorklogPoster interface {
	AddWorklog(ctx context.Context, userID, key string, w jira.Worklog) (json.RawMessage, error)
}

// Worklog outcomes of StopAndWorklog.
const (
	WorklogPushed  = "pushed"
	WorklogFailed  = "failed"
	WorklogSkipped = "skipped"
)

// StopResult reports what StopAndWorklog did.
type StopResult struct {
	Entry    *model.TimeEntry `json:"entry"`
	Worklog  string           `json:"worklog"`
	PushedAt *time.Time       `json:"pushed_at,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// Tracker runs time tracking for users.  Nothing stops two entries for the
// same source from being open at once; Stop closes the most recent one.
type Tracker struct {
	entries  EntryStore
	settings SettingsReader
	worklogs WorklogPoster
	now      func() time.Time
}

// NewTracker wires a Tracker.  worklogs may be nil, in which case Jira
// entries are never pushed.
func NewTracker(entries EntryStore, settings SettingsReader, worklogs WorklogPoster) *Tracker {
	return &Tracker{entries: entries, settings: settings, worklogs: worklogs, now: time.Now}
}

func normalize(sourceType string, sourceID *string) (string, *string) {
	if sourceType == "" {
		sourceType = model.SourceCustom
	}
	if sourceID != nil && *sourceID == "" {
		sourceID = nil
	}
	return sourceType, sourceID
}

// Start opens a new entry for the source.
func (t *Tracker) Start(ctx context.Context, userID, sourceType string, sourceID *string) (*model.TimeEntry, error) {
	sourceType, sourceID = normalize(sourceType, sourceID)
	return t.entries.Start(ctx, userID, sourceType, sourceID, t.now().UTC())
}

// Open returns the running entry for the source, or nil.
func (t *Tracker) Open(ctx context.Context, userID, sourceType string, sourceID *string) (*model.TimeEntry, error) {
	sourceType, sourceID = normalize(sourceType, sourceID)
	e, err := t.entries.FindOpen(ctx, userID, sourceType, sourceID)
	if errors.Is(err, repository.ErrNoOpenEntry) {
		return nil, nil
	}
	return e, err
}

// Stop closes the most recently started open entry for the source.  It
// returns repository.ErrNoOpenEntry when nothing is running.
func (t *Tracker) Stop(ctx context.Context, userID, sourceType string, sourceID *string) (*model.TimeEntry, error) {
	sourceType, sourceID = normalize(sourceType, sourceID)
	e, err := t.entries.FindOpen(ctx, userID, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	return t.entries.Close(ctx, e.ID, t.now().UTC())
}

// StopAndWorklog stops the entry and, for Jira issues, logs the tracked
// time on the issue.  A failed worklog does not reopen the entry.
func (t *Tracker) StopAndWorklog(ctx context.Context, userID, sourceType string, sourceID *string, comment string) (*StopResult, error) {
	e, err := t.Stop(ctx, userID, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	res := &StopResult{Entry: e, Worklog: WorklogSkipped}
	if e.SourceType != model.SourceJira || e.SourceID == nil || e.EndedAt == nil || t.worklogs == nil {
		return res, nil
	}

	issue := *e.SourceID
	if comment == "" {
		comment = t.defaultComment(ctx, userID, issue)
	}
	_, err = t.worklogs.AddWorklog(ctx, userID, issue, jira.Worklog{Started: e.StartedAt, Ended: *e.EndedAt, Comment: comment})
	if err != nil {
		log.Printf("tracking: worklog failed entry=%s issue=%s: %v", e.ID, issue, err)
		res.Worklog = WorklogFailed
		res.Message = err.Error()
		return res, nil
	}

	pushedAt := t.now().UTC()
	if err := t.entries.MarkPushed(ctx, e.ID, pushedAt); err != nil {
		log.Printf("tracking: mark pushed entry=%s: %v", e.ID, err)
	}
	e.PushedToJiraAt = &pushedAt
	res.Worklog = WorklogPushed
	res.PushedAt = &pushedAt
	return res, nil
}

// defaultComment expands the user's template; {issue} becomes the issue key.
func (t *Tracker) defaultComment(ctx context.Context, userID, issue string) string {
	if t.settings == nil {
		return ""
	}
	s, err := t.settings.Get(ctx, userID)
	if err != nil || s.DefaultWorklogCommentTemplate == nil {
		return ""
	}
	return strings.ReplaceAll(*s.DefaultWorklogCommentTemplate, "{issue}", issue)
}
