// Package period computes the calendar boundaries the ledger depends on:
// the current day in the reporting timezone (daily quota rows) and the next
// monthly reset instant (allocation rollover). Both are evaluated lazily by
// callers; nothing here schedules anything.
package period

import (
	"fmt"
	"time"
)

// DefaultTimezone is the reporting timezone used when none is configured.
const DefaultTimezone = "Asia/Tokyo"

// Clock resolves calendar days and monthly reset instants in a fixed
// reporting timezone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow overrides the time source. Used by tests.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// New creates a Clock for the given IANA timezone name.
func New(timezone string, opts ...Option) (*Clock, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}
	c := &Clock{loc: loc, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Now returns the current time in the reporting timezone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Day returns the calendar day string (YYYY-MM-DD) for t in the reporting
// timezone. Daily quota rows are keyed by this string.
func (c *Clock) Day(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02")
}

// Today returns the current calendar day string.
func (c *Clock) Today() string {
	return c.Day(c.now())
}

// EndOfDay returns the first instant of the next calendar day in the
// reporting timezone. Redis quota keys expire at this instant.
func (c *Clock) EndOfDay(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, c.loc)
}

// NextReset returns the instant one calendar month after lastReset.
// time.AddDate normalizes overflow (Jan 31 + 1 month = Mar 2/3), which keeps
// the reset monotonic even for end-of-month anchors.
func (c *Clock) NextReset(lastReset time.Time) time.Time {
	return lastReset.In(c.loc).AddDate(0, 1, 0)
}

// RolloverDue reports whether the monthly allocation reset is due.
func (c *Clock) RolloverDue(lastReset time.Time) bool {
	return !c.Now().Before(c.NextReset(lastReset))
}
