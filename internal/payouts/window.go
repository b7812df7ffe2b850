package payouts

import (
	"fmt"
	"time"
)

// PreviousMonth returns the UTC calendar month before now as [start, end).
func PreviousMonth(now time.Time) (time.Time, time.Time) {
	end := monthStart(now.UTC())
	return end.AddDate(0, -1, 0), end
}

// MonthWindow returns [first of month, first of next month) in UTC.
func MonthWindow(year int, month time.Month) (time.Time, time.Time, error) {
	if month < time.January || month > time.December {
		return time.Time{}, time.Time{}, fmt.Errorf("month %d out of range", month)
	}
	if year < 2000 || year > 9999 {
		return time.Time{}, time.Time{}, fmt.Errorf("year %d out of range", year)
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
