package stats

import (
	"time"

	"github.com/iliyamo/dayplanner/internal/model"
)

// BusyIntervals converts time entries to intervals; open entries end at now.
func BusyIntervals(entries []model.TimeEntry, now time.Time) []Interval {
	out := make([]Interval, 0, len(entries))
	for _, e := range entries {
		end := now
		if e.EndedAt != nil {
			end = *e.EndedAt
		}
		out = append(out, Interval{Start: e.StartedAt, End: end})
	}
	return out
}

// MeetingIntervals keeps the calendar entries that have both a start and an end.
func MeetingIntervals(entries []model.TodayEntry) []Interval {
	out := make([]Interval, 0, len(entries))
	for _, e := range entries {
		if e.Kind != model.KindCalendar || e.Start == nil || e.End == nil {
			continue
		}
		out = append(out, Interval{Start: *e.Start, End: *e.End})
	}
	return out
}

// Compute derives the daily figures from busy and meeting intervals.
// Meetings outside busy time contribute nothing.
func Compute(userID, dateISO string, busy, meetings []Interval) model.DailyStats {
	s := model.DailyStats{UserID: userID, DateISO: dateISO}

	merged := Merge(busy)
	if len(merged) == 0 {
		return s
	}
	first, last := merged[0].Start, merged[len(merged)-1].End
	s.DayStart, s.DayEnd = &first, &last

	work := Total(merged)
	meeting := Intersect(merged, Merge(meetings))
	s.WorkMs = work.Milliseconds()
	s.MeetingMs = meeting.Milliseconds()
	s.BreakMs = Breaks(merged).Milliseconds()
	if focus := s.WorkMs - s.MeetingMs; focus > 0 {
		s.FocusMs = focus
	}
	return s
}
