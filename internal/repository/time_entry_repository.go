package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/dayplanner/internal/model"
)

// TimeEntryRepo persists time-tracking intervals.  Nothing in the schema
// prevents two open entries for the same source; FindOpen and Stop always
// act on the most recently started one.
type TimeEntryRepo struct{ db *sql.DB }

// NewTimeEntryRepo returns a TimeEntryRepo bound to db.
func NewTimeEntryRepo(db *sql.DB) *TimeEntryRepo { return &TimeEntryRepo{db: db} }

const entryColumns = "id, user_id, source_type, source_id, started_at, ended_at, pushed_to_jira_at"

// Start inserts an open entry beginning at startedAt.
func (r *TimeEntryRepo) Start(ctx context.Context, userID, sourceType string, sourceID *string, startedAt time.Time) (*model.TimeEntry, error) {
	e := &model.TimeEntry{
		ID:         uuid.NewString(),
		UserID:     userID,
		SourceType: sourceType,
		SourceID:   sourceID,
		StartedAt:  startedAt.UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO time_entries (id, user_id, source_type, source_id, started_at) VALUES (?,?,?,?,?)",
		e.ID, e.UserID, e.SourceType, nullString(e.SourceID), toMs(e.StartedAt))
	if err != nil {
		return nil, err
	}
	return e, nil
}

// FindOpen returns the most recently started open entry for the source,
// or ErrNoOpenEntry.  A nil sourceID matches entries without a source id.
func (r *TimeEntryRepo) FindOpen(ctx context.Context, userID, sourceType string, sourceID *string) (*model.TimeEntry, error) {
	q := "SELECT " + entryColumns + " FROM time_entries WHERE user_id = ? AND source_type = ? AND ended_at IS NULL"
	args := []any{userID, sourceType}
	if sourceID == nil {
		q += " AND source_id IS NULL"
	} else {
		q += " AND source_id = ?"
		args = append(args, *sourceID)
	}
	q += " ORDER BY started_at DESC LIMIT 1"
	e, err := scanEntry(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoOpenEntry
	}
	return e, err
}

// Close sets ended_at on entry id.
func (r *TimeEntryRepo) Close(ctx context.Context, id string, endedAt time.Time) (*model.TimeEntry, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE time_entries SET ended_at = ? WHERE id = ?", toMs(endedAt), id)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrEntryNotFound
	}
	return r.Get(ctx, id)
}

// MarkPushed records when a Jira worklog was accepted for entry id.
func (r *TimeEntryRepo) MarkPushed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE time_entries SET pushed_to_jira_at = ? WHERE id = ?", toMs(at), id)
	return err
}

// Get fetches an entry by id.
func (r *TimeEntryRepo) Get(ctx context.Context, id string) (*model.TimeEntry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM time_entries WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return e, err
}

// ListOverlapping returns entries of userID that started at or before
// to and are either still open or ended at or after from.
func (r *TimeEntryRepo) ListOverlapping(ctx context.Context, userID string, from, to time.Time) ([]model.TimeEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+entryColumns+` FROM time_entries
		 WHERE user_id = ? AND started_at <= ? AND (ended_at IS NULL OR ended_at >= ?)
		 ORDER BY started_at ASC`,
		userID, toMs(to), toMs(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TimeEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEntry(s rowScanner) (*model.TimeEntry, error) {
	var e model.TimeEntry
	var sourceID sql.NullString
	var started int64
	var ended, pushed sql.NullInt64
	if err := s.Scan(&e.ID, &e.UserID, &e.SourceType, &sourceID, &started, &ended, &pushed); err != nil {
		return nil, err
	}
	e.SourceID = stringPtr(sourceID)
	e.StartedAt = fromMs(started)
	e.EndedAt = timePtr(ended)
	e.PushedToJiraAt = timePtr(pushed)
	return &e, nil
}
