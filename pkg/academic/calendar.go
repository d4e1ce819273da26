// Package academic computes course-year and trimester boundaries used to
// scope per-trimester loan quotas, plus the business-day due date policy.
package academic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CourseYearStartMonth is the month the academic year begins (on day 1).
const CourseYearStartMonth = time.September

// Cutoff is the last day (inclusive) of a trimester, expressed as day and month.
type Cutoff struct {
	Day   int
	Month time.Month
}

// String renders the cutoff in DD-MM form.
func (c Cutoff) String() string {
	return fmt.Sprintf("%02d-%02d", c.Day, int(c.Month))
}

// Cutoffs holds the three trimester end dates in course order.
type Cutoffs [3]Cutoff

// DefaultCutoffs returns 15-Dec, 15-Mar and 15-Jun.
func DefaultCutoffs() Cutoffs {
	return Cutoffs{
		{Day: 15, Month: time.December},
		{Day: 15, Month: time.March},
		{Day: 15, Month: time.June},
	}
}

// ParseCutoff parses a DD-MM string. Day 29-02 is rejected because it does not
// exist every year.
func ParseCutoff(raw string) (Cutoff, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return Cutoff{}, fmt.Errorf("cutoff %q: expected DD-MM", raw)
	}
	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return Cutoff{}, fmt.Errorf("cutoff %q: invalid day", raw)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return Cutoff{}, fmt.Errorf("cutoff %q: invalid month", raw)
	}
	// 2023 is not a leap year, so normalisation catches 29-02 as well as 31-04.
	probe := time.Date(2023, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if day < 1 || probe.Day() != day || probe.Month() != time.Month(month) {
		return Cutoff{}, fmt.Errorf("cutoff %q: day out of range", raw)
	}
	return Cutoff{Day: day, Month: time.Month(month)}, nil
}

// ParseCutoffs parses exactly three DD-MM values.
func ParseCutoffs(raw []string) (Cutoffs, error) {
	var result Cutoffs
	if len(raw) != len(result) {
		return result, fmt.Errorf("expected %d trimester cutoffs, got %d", len(result), len(raw))
	}
	for i, value := range raw {
		c, err := ParseCutoff(value)
		if err != nil {
			return result, err
		}
		result[i] = c
	}
	return result, nil
}

// Window is a trimester span. From is inclusive and Until is exclusive
// (midnight following the cutoff day).
type Window struct {
	Index    int
	BaseYear int
	From     time.Time
	Until    time.Time
}

// LastDay returns the cutoff day that closes the window.
func (w Window) LastDay() time.Time {
	return w.Until.AddDate(0, 0, -1)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.Until)
}

// BaseYear returns the calendar year in which the current course year began.
func BaseYear(today time.Time) int {
	if today.Month() >= CourseYearStartMonth {
		return today.Year()
	}
	return today.Year() - 1
}

// CourseYearStart returns midnight of September 1 of the current course year.
func CourseYearStart(today time.Time) time.Time {
	return time.Date(BaseYear(today), CourseYearStartMonth, 1, 0, 0, 0, 0, today.Location())
}

// CurrentWindow returns the trimester containing today. The boolean is false
// during the summer recess after the third cutoff.
func CurrentWindow(today time.Time, cutoffs Cutoffs) (Window, bool) {
	base := BaseYear(today)
	loc := today.Location()
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)

	from := CourseYearStart(today)
	years := [3]int{base, base + 1, base + 1}
	for i, c := range cutoffs {
		until := time.Date(years[i], c.Month, c.Day, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
		if day.Before(until) {
			return Window{Index: i + 1, BaseYear: base, From: from, Until: until}, true
		}
		from = until
	}
	return Window{}, false
}

// NextBusinessDayAt returns the next working day after t at hour:00 in t's
// location. Friday moves to Monday, Saturday to Monday, Sunday to Monday.
func NextBusinessDayAt(t time.Time, hour int) time.Time {
	days := 1
	switch t.Weekday() {
	case time.Friday:
		days = 3
	case time.Saturday:
		days = 2
	}
	next := t.AddDate(0, 0, days)
	return time.Date(next.Year(), next.Month(), next.Day(), hour, 0, 0, 0, t.Location())
}

// courseOffset is the number of days between September 1 and the cutoff,
// measured across a non-leap course year.
func (c Cutoff) courseOffset() int {
	start := time.Date(2022, CourseYearStartMonth, 1, 0, 0, 0, 0, time.UTC)
	year := 2022
	if c.Month < CourseYearStartMonth {
		year = 2023
	}
	return int(time.Date(year, c.Month, c.Day, 0, 0, 0, 0, time.UTC).Sub(start).Hours() / 24)
}

// Ordered reports whether the cutoffs follow each other within one course year.
// The first cutoff must fall in the calendar year the course starts (September
// to December) and the others in the following one (January to August).
func (cs Cutoffs) Ordered() bool {
	if cs[0].Month < CourseYearStartMonth {
		return false
	}
	for i := 1; i < len(cs); i++ {
		if cs[i].Month >= CourseYearStartMonth {
			return false
		}
		if cs[i].courseOffset() <= cs[i-1].courseOffset() {
			return false
		}
	}
	return true
}
