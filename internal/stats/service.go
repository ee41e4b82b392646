package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/dayplanner/internal/model"
	"github.com/iliyamo/dayplanner/internal/repository"
)

// Cache stores computed DailyStats per (user, date).
type Cache interface {
	Get(ctx context.Context, userID, dateISO string) (*model.DailyStats, error)
	Save(ctx context.Context, s *model.DailyStats) error
	Delete(ctx context.Context, userID, dateISO string) error
}

// EntrySource lists the time entries touching a window.
type EntrySource interface {
	ListOverlapping(ctx context.Context, userID string, from, to time.Time) ([]model.TimeEntry, error)
}

// MeetingSource lists the user's pinned entries for a date.
type MeetingSource interface {
	ListForDate(ctx context.Context, userID, dateISO, kind string) ([]model.TodayEntry, error)
}

// Service returns cached daily stats, computing and storing them on the
// first request for a (user, date).  A cached row is returned as is until
// Invalidate removes it.
type Service struct {
	cache    Cache
	entries  EntrySource
	meetings MeetingSource
	now      func() time.Time
}

// NewService wires a Service.
func NewService(cache Cache, entries EntrySource, meetings MeetingSource) *Service {
	return &Service{cache: cache, entries: entries, meetings: meetings, now: time.Now}
}

// ErrBadDate is returned for dates that are not YYYY-MM-DD.
var ErrBadDate = errors.New("date must be YYYY-MM-DD")

// Workday returns the stats for dateISO.
func (s *Service) Workday(ctx context.Context, userID, dateISO string) (*model.DailyStats, error) {
	day, err := time.ParseInLocation("2006-01-02", dateISO, time.UTC)
	if err != nil {
		return nil, ErrBadDate
	}
	cached, err := s.cache.Get(ctx, userID, dateISO)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, repository.ErrStatsNotFound) {
		return nil, fmt.Errorf("read stats cache: %w", err)
	}

	// entries are not clipped to the day
	entries, err := s.entries.ListOverlapping(ctx, userID, day, day.Add(24*time.Hour-time.Second))
	if err != nil {
		return nil, fmt.Errorf("list time entries: %w", err)
	}
	meetings, err := s.meetings.ListForDate(ctx, userID, dateISO, model.KindCalendar)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}

	out := Compute(userID, dateISO, BusyIntervals(entries, s.now().UTC()), MeetingIntervals(meetings))
	if err := s.cache.Save(ctx, &out); err != nil {
		return nil, fmt.Errorf("save stats: %w", err)
	}
	return &out, nil
}

// Invalidate drops the cached stats so the next Workday call recomputes.
func (s *Service) Invalidate(ctx context.Context, userID, dateISO string) error {
	if _, err := time.ParseInLocation("2006-01-02", dateISO, time.UTC); err != nil {
		return ErrBadDate
	}
	return s.cache.Delete(ctx, userID, dateISO)
}
