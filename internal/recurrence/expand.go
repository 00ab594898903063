package recurrence

import "time"

// Expand generates the rule's occurrence instants within [rangeStart, rangeEnd).
// seriesStart anchors the series: it is the first occurrence and supplies the
// time-of-day for generated instants. COUNT and UNTIL are honored.
func Expand(rule Rule, seriesStart, rangeStart, rangeEnd time.Time) []time.Time {
	var results []time.Time
	count := 0

	iter := newIterator(rule, seriesStart)
	for {
		occ := iter.next()
		if occ.IsZero() {
			break
		}

		if rule.Until != nil && occ.After(*rule.Until) {
			break
		}
		if !occ.Before(rangeEnd) {
			break
		}

		count++
		if rule.Count > 0 && count > rule.Count {
			break
		}

		if !occ.Before(rangeStart) {
			results = append(results, occ)
		}
	}

	return results
}

// Next returns the first occurrence on or after from, or the zero time if
// the rule is exhausted (COUNT or UNTIL) before reaching from.
func Next(rule Rule, seriesStart, from time.Time) time.Time {
	count := 0

	iter := newIterator(rule, seriesStart)
	for {
		occ := iter.next()
		if occ.IsZero() {
			return time.Time{}
		}
		if rule.Until != nil && occ.After(*rule.Until) {
			return time.Time{}
		}
		count++
		if rule.Count > 0 && count > rule.Count {
			return time.Time{}
		}
		if !occ.Before(from) {
			return occ
		}
	}
}

type iterator struct {
	rule       Rule
	baseStart  time.Time
	current    time.Time
	weekDayIdx int
	started    bool
	count      int
}

func newIterator(rule Rule, start time.Time) *iterator {
	return &iterator{
		rule:      rule,
		baseStart: start,
		current:   start,
	}
}

func (it *iterator) next() time.Time {
	// Safety limit to prevent infinite loops
	const maxIterations = 10000

	if it.count >= maxIterations {
		return time.Time{}
	}
	it.count++

	switch it.rule.Freq {
	case Daily:
		return it.advanceDaily()
	case Weekly:
		if len(it.rule.ByDay) > 0 {
			return it.advanceWeeklyByDay()
		}
		return it.advanceWeeklySimple()
	case Monthly:
		return it.advanceMonthly()
	case Yearly:
		return it.advanceYearly()
	}
	return time.Time{}
}

func (it *iterator) advanceDaily() time.Time {
	if !it.started {
		it.started = true
		return it.current
	}
	it.current = it.current.AddDate(0, 0, it.rule.Interval)
	return it.current
}

func (it *iterator) advanceWeeklySimple() time.Time {
	if !it.started {
		it.started = true
		return it.current
	}
	it.current = it.current.AddDate(0, 0, 7*it.rule.Interval)
	return it.current
}

func (it *iterator) advanceWeeklyByDay() time.Time {
	if !it.started {
		it.started = true
		// Start from the Monday of the series' first week
		it.current = weekStart(it.baseStart)
		it.weekDayIdx = 0
		return it.findNextByDay()
	}

	it.weekDayIdx++
	if it.weekDayIdx >= len(it.rule.ByDay) {
		it.current = weekStart(it.current.AddDate(0, 0, 7*it.rule.Interval))
		it.weekDayIdx = 0
	}
	return it.findNextByDay()
}

func (it *iterator) findNextByDay() time.Time {
	for it.weekDayIdx < len(it.rule.ByDay) {
		day := it.rule.ByDay[it.weekDayIdx]
		monday := it.current
		offset := int(day) - int(time.Monday)
		if offset < 0 {
			offset += 7 // Sunday
		}
		candidate := time.Date(
			monday.Year(), monday.Month(), monday.Day()+offset,
			it.baseStart.Hour(), it.baseStart.Minute(), it.baseStart.Second(), 0,
			it.baseStart.Location(),
		)

		// Skip dates before the series start
		if !candidate.Before(it.baseStart) {
			return candidate
		}
		it.weekDayIdx++
	}

	// All days in this week precede the start; advance to the next week
	it.current = weekStart(it.current.AddDate(0, 0, 7*it.rule.Interval))
	it.weekDayIdx = 0
	return it.findNextByDay()
}

// weekStart floors t to Monday 00:00 in t's location. The UTC period key
// used for completion tracking lives in PeriodKey; this one keeps the
// location because rule expansion preserves local time-of-day.
func weekStart(t time.Time) time.Time {
	offset := int(t.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	monday := t.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}

func (it *iterator) advanceMonthly() time.Time {
	if !it.started {
		it.started = true
		return it.current
	}

	day := it.rule.ByMonthDay
	if day == 0 {
		day = it.baseStart.Day()
	}

	next := it.current.AddDate(0, it.rule.Interval, 0)

	// Clamp to months that actually have the desired day
	year, month, _ := next.Date()
	lastDay := daysInMonth(year, month)
	if day > lastDay {
		for {
			next = next.AddDate(0, it.rule.Interval, 0)
			year, month, _ = next.Date()
			lastDay = daysInMonth(year, month)
			if day <= lastDay {
				break
			}
		}
	}

	it.current = time.Date(
		year, month, day,
		it.baseStart.Hour(), it.baseStart.Minute(), it.baseStart.Second(), 0,
		it.baseStart.Location(),
	)
	return it.current
}

func (it *iterator) advanceYearly() time.Time {
	if !it.started {
		it.started = true
		return it.current
	}

	next := it.current.AddDate(it.rule.Interval, 0, 0)
	// Feb 29 anchors skip to the next leap year
	if it.baseStart.Month() == time.February && it.baseStart.Day() == 29 {
		for next.Day() != 29 {
			next = next.AddDate(it.rule.Interval, 0, 0)
		}
	}

	it.current = next
	return it.current
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
