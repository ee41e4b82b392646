// Package calendar translates a small provider-neutral calendar API onto
// Google Calendar and Microsoft Graph.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/oauth"
)

// Adapter is implemented once per calendar provider.
//
// Reads return an empty list when the user has not linked the provider.
// Writes return oauth.ErrNotLinked in that case.  Delete treats an event
// that is already gone as deleted.
type Adapter interface {
	Provider() model.Provider
	ListForDay(ctx context.Context, userID, dateISO string) ([]model.Event, error)
	ListBetween(ctx context.Context, userID string, start, end time.Time) ([]model.Event, error)
	Create(ctx context.Context, userID, title string, start, end time.Time) (string, error)
	Update(ctx context.Context, userID, eventID string, patch EventPatch) error
	Delete(ctx context.Context, userID, eventID string) error
}

// EventPatch holds the fields of a partial update.  Nil fields are not
// sent to the provider.
type EventPatch struct {
	Title *string
	Start *time.Time
	End   *time.Time
}

// Empty reports whether the patch changes nothing.
func (p EventPatch) Empty() bool { return p.Title == nil && p.Start == nil && p.End == nil }

// UpstreamError is a non-success response from a provider's calendar API.
type UpstreamError struct {
	Provider model.Provider
	Op       string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s failed: status %d", e.Provider, e.Op, e.Status)
}

// ErrBadDate is returned for dates that are not YYYY-MM-DD.
var ErrBadDate = errors.New("date must be YYYY-MM-DD")

// DayWindow returns the UTC window [00:00:00Z, 23:59:59Z] of dateISO.
func DayWindow(dateISO string) (time.Time, time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", dateISO, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, ErrBadDate
	}
	return d, d.Add(24*time.Hour - time.Second), nil
}

// unlinked reports whether err means "no grant for this provider".
func unlinked(err error) bool { return errors.Is(err, oauth.ErrNotLinked) }

// Registry looks adapters up by provider.
type Registry map[model.Provider]Adapter

// NewRegistry indexes adapters by their provider.
func NewRegistry(adapters ...Adapter) Registry {
	r := Registry{}
	for _, a := range adapters {
		r[a.Provider()] = a
	}
	return r
}
