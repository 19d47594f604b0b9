package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/saoki0913/career-compass-sub001/models"
	"github.com/saoki0913/career-compass-sub001/period"
)

// PostgresCounter stores daily counts as rows keyed by (identity, day). The
// day rollover is implicit: a new day simply addresses a row that does not
// exist yet. Old rows are left for external retention jobs.
type PostgresCounter struct {
	db    *bun.DB
	clock *period.Clock
}

var _ Counter = (*PostgresCounter)(nil)

// NewPostgresCounter creates a Postgres-backed daily counter.
func NewPostgresCounter(db *bun.DB, clock *period.Clock) *PostgresCounter {
	return &PostgresCounter{db: db, clock: clock}
}

// Remaining returns the free operations left today for an identity.
func (c *PostgresCounter) Remaining(ctx context.Context, identityKey string, dailyLimit int64) (int64, error) {
	var count int64
	err := c.db.NewSelect().
		Model((*models.DailyQuota)(nil)).
		Column("count").
		Where("identity_key = ?", identityKey).
		Where("day = ?", c.clock.Today()).
		Scan(ctx, &count)
	if errors.Is(err, sql.ErrNoRows) {
		count = 0
	} else if err != nil {
		return 0, fmt.Errorf("reading daily count: %w", err)
	}

	remaining := dailyLimit - count
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Increment bumps today's counter. Increment and create cannot both be one
// primitive against a row that may not exist, so this runs increment-first,
// falls back to an insert that fails safely on the uniqueness constraint,
// and retries the increment when a concurrent creator wins that insert.
func (c *PostgresCounter) Increment(ctx context.Context, identityKey string) error {
	day := c.clock.Today()

	for attempt := 0; attempt < 2; attempt++ {
		res, err := c.db.NewUpdate().
			Model((*models.DailyQuota)(nil)).
			Set("count = count + 1").
			Where("identity_key = ?", identityKey).
			Where("day = ?", day).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("incrementing daily count: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 1 {
			return nil
		}

		res, err = c.db.NewInsert().
			Model(&models.DailyQuota{IdentityKey: identityKey, Day: day, Count: 1}).
			On("CONFLICT (identity_key, day) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("creating daily count: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 1 {
			return nil
		}
		// Insert lost to a concurrent creator; the row exists now, so the
		// increment arm must succeed on the next pass.
	}
	return fmt.Errorf("daily count contention for %s on %s", identityKey, day)
}
