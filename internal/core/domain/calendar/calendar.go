// internal/core/domain/calendar/calendar.go
package calendar

import (
	"sync"
	"time"
	_ "time/tzdata"
)

// Zone is the trading timezone.
const Zone = "Europe/Amsterdam"

// Location is Europe/Amsterdam. tzdata is embedded, so LoadLocation cannot fail.
var Location = mustLoad(Zone)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("calendar: load " + name + ": " + err.Error())
	}
	return loc
}

// Clock provides "now" in the trading timezone.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().In(Location) }

// ManualClock is a settable clock for tests and dry runs.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t.In(Location)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.In(Location)
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Date builds a wall-clock time in the trading timezone.
func Date(year int, month time.Month, day, hour, min, sec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, Location)
}

// Local converts t to the trading timezone.
func Local(t time.Time) time.Time { return t.In(Location) }

// ParseLocal parses a zone-less operator timestamp as Amsterdam wall time.
func ParseLocal(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, Location)
}

// IsTradingDay reports whether the calendar day of t is Monday–Friday.
func IsTradingDay(t time.Time) bool {
	switch t.In(Location).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return true
}

// IsWeekendClosed reports market closure for price tracking: Fri 23:00 through Sun 23:55.
func IsWeekendClosed(t time.Time) bool {
	t = t.In(Location)
	minutes := t.Hour()*60 + t.Minute()
	switch t.Weekday() {
	case time.Friday:
		return minutes >= 23*60
	case time.Saturday:
		return true
	case time.Sunday:
		return minutes < 23*60+55
	}
	return false
}

// IsTrialWeekend is the human-facing weekend used for trial-start messaging:
// Fri 12:00 through Sun 23:59.
func IsTrialWeekend(t time.Time) bool {
	t = t.In(Location)
	switch t.Weekday() {
	case time.Friday:
		return t.Hour() >= 12
	case time.Saturday, time.Sunday:
		return true
	}
	return false
}

// NextTradingDay returns the n-th trading day strictly after the calendar day of from,
// at hh:mm:ss local time. n < 1 is treated as 1.
func NextTradingDay(from time.Time, n, hh, mm, ss int) time.Time {
	if n < 1 {
		n = 1
	}
	from = from.In(Location)
	y, m, d := from.Date()
	day := time.Date(y, m, d, 12, 0, 0, 0, Location)
	for counted := 0; counted < n; {
		day = day.AddDate(0, 0, 1)
		if IsTradingDay(day) {
			counted++
		}
	}
	y, m, d = day.Date()
	return time.Date(y, m, d, hh, mm, ss, 0, Location)
}

// TrialLength is the number of trading days a trial grants.
const TrialLength = 3

// TrialExpiry computes the expiry of a trial that started at joined.
// Weekend joins expire on the Wednesday after the join at 22:59; weekday joins expire
// three weekdays after the join day at the same wall time.
func TrialExpiry(joined time.Time) time.Time {
	joined = joined.In(Location)
	if !IsTradingDay(joined) {
		return NextTradingDay(joined, TrialLength, 22, 59, 0)
	}
	return NextTradingDay(joined, TrialLength, joined.Hour(), joined.Minute(), joined.Second())
}

// IsMondayActivationWindow reports Monday 00:00–01:00 local.
func IsMondayActivationWindow(t time.Time) bool {
	t = t.In(Location)
	if t.Weekday() != time.Monday {
		return false
	}
	return t.Hour() == 0 || (t.Hour() == 1 && t.Minute() == 0 && t.Second() == 0)
}

// StartOfWeek returns Monday 00:00 local of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	t = t.In(Location)
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Location)
}
