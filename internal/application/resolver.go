package application

import (
	"fmt"
	"time"

	"github.com/jobrunner/modisfetch/internal/domain"
)

// ResolveDays selects the day directories to process from a newest-first
// list of available days.
//
// The window starts at the newest available day not after today and spans
// delta available days. When end is set the window length becomes the number
// of calendar days from end to today (inclusive), and days older than end are
// dropped. An empty result after that truncation is valid.
func ResolveDays(today time.Time, end *time.Time, delta int, available []domain.DayID) ([]domain.DayID, error) {
	if end != nil {
		span := domain.DaysBetween(*end, today)
		if span < 0 {
			return nil, fmt.Errorf("%w: %s is after %s",
				domain.ErrEndAfterToday, end.Format(domain.DateLayout), today.Format(domain.DateLayout))
		}
		delta = span + 1
	}
	if delta < 1 {
		return nil, fmt.Errorf("%w: must be at least 1, got %d", domain.ErrInvalidDelta, delta)
	}

	todayID := domain.NewDayID(today)
	start := -1
	for i, day := range available {
		if day <= todayID {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: nothing on or before %s", domain.ErrNoDataInWindow, todayID)
	}

	stop := start + delta
	if stop > len(available) {
		stop = len(available)
	}
	window := available[start:stop]

	if end != nil {
		endID := domain.NewDayID(*end)
		keep := 0
		for keep < len(window) && window[keep] >= endID {
			keep++
		}
		window = window[:keep]
	}

	out := make([]domain.DayID, len(window))
	copy(out, window)
	return out, nil
}

// ResolveDates resolves every date with a one-day window and returns the
// distinct days, newest first. Dates with no data on or before them are skipped.
func ResolveDates(dates []time.Time, available []domain.DayID) ([]domain.DayID, error) {
	seen := make(map[domain.DayID]struct{}, len(dates))
	var days []domain.DayID

	for _, date := range dates {
		resolved, err := ResolveDays(date, nil, 1, available)
		if err != nil {
			continue
		}
		for _, day := range resolved {
			if _, dup := seen[day]; dup {
				continue
			}
			seen[day] = struct{}{}
			days = append(days, day)
		}
	}

	if len(dates) > 0 && len(days) == 0 {
		return nil, fmt.Errorf("%w: none of %d requested dates", domain.ErrNoDataInWindow, len(dates))
	}

	domain.SortNewestFirst(days)
	return days, nil
}
