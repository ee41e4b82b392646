package model

import "time"

// DailyStats is the cached work summary of one user for one UTC date.
// FocusMs always equals max(0, WorkMs-MeetingMs).
type DailyStats struct {
	UserID    string     `json:"user_id"`
	DateISO   string     `json:"date"`
	DayStart  *time.Time `json:"day_start"`
	DayEnd    *time.Time `json:"day_end"`
	WorkMs    int64      `json:"work_ms"`
	BreakMs   int64      `json:"break_ms"`
	MeetingMs int64      `json:"meeting_ms"`
	FocusMs   int64      `json:"focus_ms"`
}

// Settings holds per-user preferences used by the sync core.
type Settings struct {
	UserID                        string  `json:"user_id"`
	AutoPushWorklog               bool    `json:"auto_push_worklog"`
	DefaultWorklogCommentTemplate *string `json:"default_worklog_comment_template,omitempty"`
	Timezone                      *string `json:"timezone,omitempty"`
	GoogleMonthsBefore            int     `json:"google_months_before"`
	GoogleMonthsAfter             int     `json:"google_months_after"`
	MicrosoftMonthsBefore         int     `json:"microsoft_months_before"`
	MicrosoftMonthsAfter          int     `json:"microsoft_months_after"`
}

// DefaultSettings returns the settings used when a user has none stored.
func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:                userID,
		GoogleMonthsBefore:    1,
		GoogleMonthsAfter:     1,
		MicrosoftMonthsBefore: 1,
		MicrosoftMonthsAfter:  1,
	}
}

// MonthsWindow returns the months-before/after range configured for p.
func (s Settings) MonthsWindow(p Provider) (before, after int) {
	if p == ProviderMicrosoft {
		return s.MicrosoftMonthsBefore, s.MicrosoftMonthsAfter
	}
	return s.GoogleMonthsBefore, s.GoogleMonthsAfter
}

// SettingsPatch carries the optional fields of a settings update.
type SettingsPatch struct {
	AutoPushWorklog               *bool   `json:"auto_push_worklog"`
	DefaultWorklogCommentTemplate *string `json:"default_worklog_comment_template"`
	Timezone                      *string `json:"timezone"`
	GoogleMonthsBefore            *int    `json:"google_months_before"`
	GoogleMonthsAfter             *int    `json:"google_months_after"`
	MicrosoftMonthsBefore         *int    `json:"microsoft_months_before"`
	MicrosoftMonthsAfter          *int    `json:"microsoft_months_after"`
}
