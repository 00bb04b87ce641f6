// Package calendar provides NYSE market holiday data and trading-day
// arithmetic. Dates cover 2025 through 2027 for backfill and forward
// scheduling.
//
// Source: https://www.nyse.com/markets/hours-calendars
package calendar

import "time"

type yearMonthDay struct {
	year  int
	month time.Month
	day   int
}

// Full-day holidays, market fully closed.
var nyseHolidays = map[yearMonthDay]bool{
	// 2025
	{2025, time.January, 1}:    true, // New Year's Day
	{2025, time.January, 20}:   true, // MLK Jr. Day
	{2025, time.February, 17}:  true, // Presidents' Day
	{2025, time.April, 18}:     true, // Good Friday
	{2025, time.May, 26}:       true, // Memorial Day
	{2025, time.June, 19}:      true, // Juneteenth
	{2025, time.July, 4}:       true, // Independence Day
	{2025, time.September, 1}:  true, // Labor Day
	{2025, time.November, 27}:  true, // Thanksgiving Day
	{2025, time.December, 25}:  true, // Christmas Day
	// 2026
	{2026, time.January, 1}:    true,
	{2026, time.January, 19}:   true,
	{2026, time.February, 16}:  true,
	{2026, time.April, 3}:      true,
	{2026, time.May, 25}:       true,
	{2026, time.June, 19}:      true,
	{2026, time.July, 3}:       true, // observed, July 4 falls on Saturday
	{2026, time.September, 7}:  true,
	{2026, time.November, 26}:  true,
	{2026, time.December, 25}:  true,
	// 2027
	{2027, time.January, 1}:    true,
	{2027, time.January, 18}:   true,
	{2027, time.February, 15}:  true,
	{2027, time.March, 26}:     true,
	{2027, time.May, 31}:       true,
	{2027, time.June, 18}:      true, // observed, June 19 falls on Saturday
	{2027, time.July, 5}:       true, // observed, July 4 falls on Sunday
	{2027, time.September, 6}:  true,
	{2027, time.November, 25}:  true,
	{2027, time.December, 24}:  true, // observed, Dec 25 falls on Saturday
}

// Early-close days, 1:00 PM ET close.
var nyseEarlyClose = map[yearMonthDay]bool{
	{2026, time.July, 2}:      true, // day before July 4 weekend
	{2026, time.November, 27}: true, // day after Thanksgiving
	{2026, time.December, 24}: true, // Christmas Eve
}

func ymd(t time.Time) yearMonthDay {
	y, m, d := t.Date()
	return yearMonthDay{y, m, d}
}

// IsTradingDay reports whether t falls on a NYSE trading day.
func IsTradingDay(t time.Time) bool {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !nyseHolidays[ymd(t)]
}

// IsEarlyClose reports whether the market closes at 1:00 PM ET on t.
func IsEarlyClose(t time.Time) bool {
	return nyseEarlyClose[ymd(t)]
}

// NextTradingDay returns the first trading day strictly after t.
func NextTradingDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, 1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// PrevTradingDay returns the last trading day strictly before t.
func PrevTradingDay(t time.Time) time.Time {
	d := t.AddDate(0, 0, -1)
	for !IsTradingDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// CalendarDaysToNextSession returns the number of calendar days from t
// to the next trading session. Theta decay accrues over calendar days,
// so a Friday before a Monday holiday counts as 4, not 1.
func CalendarDaysToNextSession(t time.Time) int {
	nxt := NextTradingDay(t)
	return int(nxt.Sub(truncateToDay(t)).Hours() / 24)
}

// IsLongWeekendAhead reports whether the next trading session is more
// than one calendar day away.
func IsLongWeekendAhead(t time.Time) bool {
	return CalendarDaysToNextSession(t) > 1
}

// TradingDaysBetween counts trading days after start up to and
// including end.
func TradingDaysBetween(start, end time.Time) int {
	count := 0
	d := truncateToDay(start).AddDate(0, 0, 1)
	last := truncateToDay(end)
	for !d.After(last) {
		if IsTradingDay(d) {
			count++
		}
		d = d.AddDate(0, 0, 1)
	}
	return count
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
