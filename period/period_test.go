package period_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saoki0913/career-compass-sub001/period"
)

func fixedClock(t *testing.T, tz string, at time.Time) *period.Clock {
	t.Helper()
	c, err := period.New(tz, period.WithNow(func() time.Time { return at }))
	require.NoError(t, err)
	return c
}

func TestDay_CrossesMidnightInReportingTimezone(t *testing.T) {
	// 16:30 UTC on Mar 1 is already 01:30 on Mar 2 in Tokyo.
	at := time.Date(2025, 3, 1, 16, 30, 0, 0, time.UTC)
	c := fixedClock(t, "Asia/Tokyo", at)

	assert.Equal(t, "2025-03-02", c.Today())
	assert.Equal(t, "2025-03-02", c.Day(at))
}

func TestEndOfDay(t *testing.T) {
	at := time.Date(2025, 3, 1, 16, 30, 0, 0, time.UTC) // Mar 2, 01:30 JST
	c := fixedClock(t, "Asia/Tokyo", at)

	end := c.EndOfDay(at)
	assert.Equal(t, "2025-03-03", c.Day(end))
	assert.Equal(t, 0, end.Hour())
	assert.True(t, end.After(at))
}

func TestNextReset_NormalizesMonthEnd(t *testing.T) {
	c := fixedClock(t, "UTC", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))

	// Jan 31 + 1 month normalizes to Mar 3 (2025 is not a leap year).
	next := c.NextReset(time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC), next)

	// Plain months advance by exactly one.
	next = c.NextReset(time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 5, 15, 10, 0, 0, 0, time.UTC), next)
}

func TestRolloverDue(t *testing.T) {
	now := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	c := fixedClock(t, "UTC", now)

	assert.True(t, c.RolloverDue(now.AddDate(0, -1, -1)))
	assert.True(t, c.RolloverDue(now.AddDate(0, -1, 0)), "boundary instant is due")
	assert.False(t, c.RolloverDue(now.AddDate(0, 0, -20)))
	assert.False(t, c.RolloverDue(now))
}

func TestNew_RejectsUnknownTimezone(t *testing.T) {
	_, err := period.New("Not/AZone")
	assert.Error(t, err)
}

func TestNew_DefaultTimezone(t *testing.T) {
	c, err := period.New("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Today())
}
