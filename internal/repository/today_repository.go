package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/iliyamo/dayplanner/internal/model"
)

// TodayRepo persists the items a user pinned to a day.
type TodayRepo struct{ db *sql.DB }

// NewTodayRepo returns a TodayRepo bound to db.
func NewTodayRepo(db *sql.DB) *TodayRepo { return &TodayRepo{db: db} }

const todayColumns = "id, user_id, date_iso, kind, provider, source_id, title, start_at, end_at"

// Upsert inserts the entry or replaces title/provider/start/end of the
// existing (user, date, kind, source) row.
func (r *TodayRepo) Upsert(ctx context.Context, e *model.TodayEntry) error {
	update := func() (int64, error) {
		res, err := r.db.ExecContext(ctx,
			`UPDATE today_entries SET title = ?, provider = ?, start_at = ?, end_at = ?
			 WHERE user_id = ? AND date_iso = ? AND kind = ? AND source_id = ?`,
			e.Title, nullString(e.Provider), nullMs(e.Start), nullMs(e.End),
			e.UserID, e.DateISO, e.Kind, e.SourceID)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
	n, err := update()
	if err != nil || n > 0 {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO today_entries ("+todayColumns+") VALUES (?,?,?,?,?,?,?,?,?)",
		e.ID, e.UserID, e.DateISO, e.Kind, nullString(e.Provider), e.SourceID, e.Title, nullMs(e.Start), nullMs(e.End))
	if isDuplicate(err) {
		_, err = update()
	}
	return err
}

// Remove deletes the entry if present.
func (r *TodayRepo) Remove(ctx context.Context, userID, dateISO, kind, sourceID string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM today_entries WHERE user_id = ? AND date_iso = ? AND kind = ? AND source_id = ?",
		userID, dateISO, kind, sourceID)
	return err
}

// ListForDate returns the user's entries for dateISO.  An empty kind
// returns every kind.
func (r *TodayRepo) ListForDate(ctx context.Context, userID, dateISO, kind string) ([]model.TodayEntry, error) {
	q := "SELECT " + todayColumns + " FROM today_entries WHERE user_id = ? AND date_iso = ?"
	args := []any{userID, dateISO}
	if kind != "" {
		q += " AND kind = ?"
		args = append(args, kind)
	}
	q += " ORDER BY start_at ASC"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TodayEntry{}
	for rows.Next() {
		var e model.TodayEntry
		var provider sql.NullString
		var start, end sql.NullInt64
		if err := rows.Scan(&e.ID, &e.UserID, &e.DateISO, &e.Kind, &provider, &e.SourceID, &e.Title, &start, &end); err != nil {
			return nil, err
		}
		e.Provider = stringPtr(provider)
		e.Start, e.End = timePtr(start), timePtr(end)
		out = append(out, e)
	}
	return out, rows.Err()
}
