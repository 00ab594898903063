package recurrence

import "time"

// PeriodKey floors t to the most recent Monday 00:00 UTC at or before t.
// It identifies the weekly window a completion belongs to and is identical
// for every recurrence syntax — completion tracking keys on it.
func PeriodKey(t time.Time) time.Time {
	t = t.UTC()
	daysFromMonday := (int(t.Weekday()) - int(time.Monday) + 7) % 7
	return time.Date(t.Year(), t.Month(), t.Day()-daysFromMonday, 0, 0, 0, 0, time.UTC)
}

// SamePeriod reports whether a and b fall in the same Monday-aligned week.
func SamePeriod(a, b time.Time) bool {
	return PeriodKey(a).Equal(PeriodKey(b))
}
