package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"regular weekday", day(2026, time.February, 11), true},
		{"saturday", day(2026, time.February, 14), false},
		{"sunday", day(2026, time.February, 15), false},
		{"presidents day 2026", day(2026, time.February, 16), false},
		{"good friday 2026", day(2026, time.April, 3), false},
		{"july 4 observed 2026", day(2026, time.July, 3), false},
		{"thanksgiving 2025", day(2025, time.November, 27), false},
		{"christmas observed 2027", day(2027, time.December, 24), false},
		{"early close is still a trading day", day(2026, time.November, 27), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTradingDay(tt.date))
		})
	}
}

func TestNextTradingDaySkipsHolidayWeekend(t *testing.T) {
	// Fri Feb 13 2026 -> Mon Feb 16 is Presidents' Day -> Tue Feb 17.
	next := NextTradingDay(day(2026, time.February, 13))
	assert.Equal(t, day(2026, time.February, 17), next)
}

func TestPrevTradingDay(t *testing.T) {
	// Tue Feb 17 2026 -> back over Presidents' Day and the weekend.
	prev := PrevTradingDay(day(2026, time.February, 17))
	assert.Equal(t, day(2026, time.February, 13), prev)
}

func TestCalendarDaysToNextSession(t *testing.T) {
	assert.Equal(t, 1, CalendarDaysToNextSession(day(2026, time.February, 11)))
	assert.Equal(t, 3, CalendarDaysToNextSession(day(2026, time.February, 6)))
	// Long weekend: Fri Feb 13 -> Tue Feb 17.
	assert.Equal(t, 4, CalendarDaysToNextSession(day(2026, time.February, 13)))
}

func TestIsLongWeekendAhead(t *testing.T) {
	assert.False(t, IsLongWeekendAhead(day(2026, time.February, 11)))
	assert.True(t, IsLongWeekendAhead(day(2026, time.February, 6)))
	assert.True(t, IsLongWeekendAhead(day(2026, time.February, 13)))
}

func TestTradingDaysBetween(t *testing.T) {
	// Mon Feb 9 to Fri Feb 13 2026: Tue through Fri = 4 trading days.
	assert.Equal(t, 4, TradingDaysBetween(day(2026, time.February, 9), day(2026, time.February, 13)))
	// Across the Presidents' Day weekend: Fri 13 -> Wed 18 = Tue + Wed.
	assert.Equal(t, 2, TradingDaysBetween(day(2026, time.February, 13), day(2026, time.February, 18)))
	assert.Equal(t, 0, TradingDaysBetween(day(2026, time.February, 13), day(2026, time.February, 13)))
}
