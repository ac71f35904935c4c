// Package market_hours decides whether the trading session is open.
package market_hours

import (
	"fmt"
	"time"
)

// Session describes one exchange's regular trading day
type Session struct {
	Code        string
	Timezone    *time.Location
	Open        time.Duration // offset from local midnight
	Close       time.Duration
	EarlyClose  time.Duration
	HolidayFunc func(year int) []time.Time
	EarlyFunc   func(date time.Time) bool
}

// NYSE returns the XNYS session: 09:30-16:00 America/New_York, 13:00 on early-close days
func NYSE() (Session, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return Session{}, fmt.Errorf("failed to load exchange timezone: %w", err)
	}
	return Session{
		Code:        "XNYS",
		Timezone:    loc,
		Open:        9*time.Hour + 30*time.Minute,
		Close:       16 * time.Hour,
		EarlyClose:  13 * time.Hour,
		HolidayFunc: USHolidays,
		EarlyFunc:   isUSEarlyClose,
	}, nil
}

// USHolidays returns the full-day US equity market holidays for a year
func USHolidays(year int) []time.Time {
	return []time.Time{
		observed(date(year, time.January, 1)),
		nthWeekday(year, time.January, time.Monday, 3),
		nthWeekday(year, time.February, time.Monday, 3),
		easter(year).AddDate(0, 0, -2),
		lastWeekday(year, time.May, time.Monday),
		observed(date(year, time.June, 19)),
		observed(date(year, time.July, 4)),
		nthWeekday(year, time.September, time.Monday, 1),
		nthWeekday(year, time.November, time.Thursday, 4),
		observed(date(year, time.December, 25)),
	}
}

// isUSEarlyClose covers July 3, the day after Thanksgiving and Christmas Eve
func isUSEarlyClose(d time.Time) bool {
	switch {
	case d.Month() == time.July && d.Day() == 3:
		return true
	case d.Month() == time.December && d.Day() == 24:
		return true
	case d.Month() == time.November:
		return sameDay(d, nthWeekday(d.Year(), time.November, time.Thursday, 4).AddDate(0, 0, 1))
	}
	return false
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// observed shifts a Saturday holiday to Friday and a Sunday holiday to Monday
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	first := date(year, month, 1)
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(n-1)*7)
}

func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	last := date(year, month+1, 0)
	offset := (int(last.Weekday()) - int(weekday) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// easter returns Gregorian Easter Sunday (anonymous computus)
func easter(year int) time.Time {
	a := year % 19
	b, c := year/100, year%100
	d, e := b/4, b%4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i, k := c/4, c%4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return date(year, time.Month(month), day)
}
