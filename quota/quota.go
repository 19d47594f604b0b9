// Package quota implements the daily free-operation counter: one count per
// identity per calendar day in the reporting timezone. Two backends share
// the same contract — Postgres rows (authoritative, survives Redis loss) and
// Redis keys with end-of-day expiry (cheaper under burst traffic).
package quota

import "context"

// Counter tracks free operations per identity per day. Increment is called
// only after the caller has verified remaining quota and only on operation
// success; the count is monotonically non-decreasing within a day.
type Counter interface {
	// Remaining returns max(0, dailyLimit - today's count). A missing
	// counter row counts as zero.
	Remaining(ctx context.Context, identityKey string, dailyLimit int64) (int64, error)

	// Increment atomically records one consumed free operation for today,
	// creating today's counter on first use.
	Increment(ctx context.Context, identityKey string) error
}
