// Package repository defines the SQL data access layer and the error
// types shared across repositories.  These sentinel values allow higher
// layers such as handlers and services to distinguish between different
// failure scenarios without inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// ErrAccountNotFound is returned when no ConnectedAccount exists for a
// (user, provider) pair.
var ErrAccountNotFound = errors.New("connected account not found")

// ErrBlockNotFound is returned when a schedule block does not exist or is
// owned by another user.
var ErrBlockNotFound = errors.New("schedule block not found")

// ErrEntryNotFound is returned when a time entry does not exist.
var ErrEntryNotFound = errors.New("time entry not found")

// ErrNoOpenEntry is returned by stop operations when nothing is running
// for the requested source.
var ErrNoOpenEntry = errors.New("no open time entry")

// ErrTodayIssueNotFound is returned when an issue is not on the user's
// today list.
var ErrTodayIssueNotFound = errors.New("issue not on today list")

// ErrStatsNotFound is returned when no cached DailyStats row exists.
var ErrStatsNotFound = errors.New("daily stats not cached")

// isDuplicate reports whether err is a unique-key violation on either
// supported driver (MySQL 1062 or SQLite UNIQUE/PRIMARY KEY constraint).
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "constraint failed: primary key")
}

func toMs(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullMs(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMs(*t), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMs(n.Int64)
	return &t
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}
