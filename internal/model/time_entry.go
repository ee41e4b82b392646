package model

import "time"

// TimeEntry is a time-tracking interval.  EndedAt is nil while the entry
// is open.
//
// Fields:
//  SourceType, SourceID – what was tracked, e.g. "jira" / "ABC-123".
//  PushedToJiraAt       – when a worklog for the entry was accepted by Jira.
type TimeEntry struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	SourceType     string     `json:"source_type"`
	SourceID       *string    `json:"source_id,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	PushedToJiraAt *time.Time `json:"pushed_to_jira_at,omitempty"`
}

// IsOpen reports whether the entry is still running.
func (e *TimeEntry) IsOpen() bool { return e.EndedAt == nil }

// TodayEntry kinds.
const (
	KindCalendar = "calendar"
	KindSchedule = "schedule"
	KindJira     = "jira"
)

// TodayEntry is an item a user pinned to a day's plan.  Calendar-kind
// entries with both Start and End are the meetings counted by the daily
// statistics.
type TodayEntry struct {
	ID       string     `json:"id"`
	UserID   string     `json:"user_id"`
	DateISO  string     `json:"date"`
	Kind     string     `json:"kind"`
	Provider *string    `json:"provider,omitempty"`
	SourceID string     `json:"source_id"`
	Title    string     `json:"title"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
}
