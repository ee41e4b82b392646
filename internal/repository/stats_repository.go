package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/dayplanner/internal/model"
)

// StatsRepo is the per-(user, date) cache of computed DailyStats.
type StatsRepo struct{ db *sql.DB }

// NewStatsRepo returns a StatsRepo bound to db.
func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

// Get returns the cached stats or ErrStatsNotFound.
func (r *StatsRepo) Get(ctx context.Context, userID, dateISO string) (*model.DailyStats, error) {
	var s model.DailyStats
	var dayStart, dayEnd sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, date_iso, day_start, day_end, work_ms, break_ms, meeting_ms, focus_ms
		 FROM daily_stats WHERE user_id = ? AND date_iso = ?`, userID, dateISO).
		Scan(&s.UserID, &s.DateISO, &dayStart, &dayEnd, &s.WorkMs, &s.BreakMs, &s.MeetingMs, &s.FocusMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatsNotFound
	}
	if err != nil {
		return nil, err
	}
	s.DayStart, s.DayEnd = timePtr(dayStart), timePtr(dayEnd)
	return &s, nil
}

// Save stores s, replacing any row for the same (user, date).  Concurrent
// writers are last-write-wins.
func (r *StatsRepo) Save(ctx context.Context, s *model.DailyStats) error {
	update := func() (int64, error) {
		res, err := r.db.ExecContext(ctx,
			`UPDATE daily_stats SET day_start = ?, day_end = ?, work_ms = ?, break_ms = ?, meeting_ms = ?, focus_ms = ?
			 WHERE user_id = ? AND date_iso = ?`,
			nullMs(s.DayStart), nullMs(s.DayEnd), s.WorkMs, s.BreakMs, s.MeetingMs, s.FocusMs, s.UserID, s.DateISO)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
	n, err := update()
	if err != nil || n > 0 {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO daily_stats (user_id, date_iso, day_start, day_end, work_ms, break_ms, meeting_ms, focus_ms)
		 VALUES (?,?,?,?,?,?,?,?)`,
		s.UserID, s.DateISO, nullMs(s.DayStart), nullMs(s.DayEnd), s.WorkMs, s.BreakMs, s.MeetingMs, s.FocusMs)
	if isDuplicate(err) {
		_, err = update()
	}
	return err
}

// Delete invalidates the cached row.  Missing rows are not an error.
func (r *StatsRepo) Delete(ctx context.Context, userID, dateISO string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM daily_stats WHERE user_id = ? AND date_iso = ?", userID, dateISO)
	return err
}
