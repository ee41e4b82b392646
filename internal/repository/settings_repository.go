package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/dayplanner/internal/model"
)

// SettingsRepo persists per-user preferences.
type SettingsRepo struct{ db *sql.DB }

// NewSettingsRepo returns a SettingsRepo bound to db.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// Get returns the user's settings, or the defaults when none are stored.
func (r *SettingsRepo) Get(ctx context.Context, userID string) (model.Settings, error) {
	s := model.DefaultSettings(userID)
	var tmpl, tz sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT auto_push_worklog, default_worklog_comment_template, timezone,
			google_months_before, google_months_after, microsoft_months_before, microsoft_months_after
		 FROM settings WHERE user_id = ?`, userID).
		Scan(&s.AutoPushWorklog, &tmpl, &tz, &s.GoogleMonthsBefore, &s.GoogleMonthsAfter,
			&s.MicrosoftMonthsBefore, &s.MicrosoftMonthsAfter)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	s.DefaultWorklogCommentTemplate = stringPtr(tmpl)
	s.Timezone = stringPtr(tz)
	return s, nil
}

// Apply merges p into the stored settings and returns the result.
func (r *SettingsRepo) Apply(ctx context.Context, userID string, p model.SettingsPatch) (model.Settings, error) {
	s, err := r.Get(ctx, userID)
	if err != nil {
		return s, err
	}
	if p.AutoPushWorklog != nil {
		s.AutoPushWorklog = *p.AutoPushWorklog
	}
	if p.DefaultWorklogCommentTemplate != nil {
		s.DefaultWorklogCommentTemplate = emptyToNil(*p.DefaultWorklogCommentTemplate)
	}
	if p.Timezone != nil {
		s.Timezone = emptyToNil(*p.Timezone)
	}
	setMonths(&s.GoogleMonthsBefore, p.GoogleMonthsBefore)
	setMonths(&s.GoogleMonthsAfter, p.GoogleMonthsAfter)
	setMonths(&s.MicrosoftMonthsBefore, p.MicrosoftMonthsBefore)
	setMonths(&s.MicrosoftMonthsAfter, p.MicrosoftMonthsAfter)

	update := func() (int64, error) {
		res, err := r.db.ExecContext(ctx,
			`UPDATE settings SET auto_push_worklog = ?, default_worklog_comment_template = ?, timezone = ?,
				google_months_before = ?, google_months_after = ?, microsoft_months_before = ?, microsoft_months_after = ?
			 WHERE user_id = ?`,
			s.AutoPushWorklog, nullString(s.DefaultWorklogCommentTemplate), nullString(s.Timezone),
			s.GoogleMonthsBefore, s.GoogleMonthsAfter, s.MicrosoftMonthsBefore, s.MicrosoftMonthsAfter, userID)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	}
	n, err := update()
	if err != nil || n > 0 {
		return s, err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO settings (user_id, auto_push_worklog, default_worklog_comment_template, timezone,
			google_months_before, google_months_after, microsoft_months_before, microsoft_months_after)
		 VALUES (?,?,?,?,?,?,?,?)`,
		userID, s.AutoPushWorklog, nullString(s.DefaultWorklogCommentTemplate), nullString(s.Timezone),
		s.GoogleMonthsBefore, s.GoogleMonthsAfter, s.MicrosoftMonthsBefore, s.MicrosoftMonthsAfter)
	if isDuplicate(err) {
		_, err = update()
	}
	return s, err
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// setMonths clamps month windows to [0, 24].
func setMonths(dst *int, v *int) {
	if v == nil {
		return
	}
	n := *v
	if n < 0 {
		n = 0
	}
	if n > 24 {
		n = 24
	}
	*dst = n
}
