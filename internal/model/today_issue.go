package model

import "time"

// TodayIssue is a Jira issue on the user's ordered "today" list.  One row
// per (user, issue key); OrderIndex starts at 1.
type TodayIssue struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	IssueKey   string    `json:"issue_key"`
	OrderIndex int       `json:"order_index"`
	Notes      *string   `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
