package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/saoki0913/career-compass-sub001/models"
)

// HalfResult reports a half-credit consumption. Consumed is 0 when the half
// was only accumulated and 1 when the pair collapsed into an integer debit.
type HalfResult struct {
	OK       bool
	Consumed int64
}

// ConsumeHalf spends half a credit. The ledger stores integers, so halves
// accumulate in the account's half_pending flag and every second half
// triggers a one-credit debit. Both arms are conditional updates:
//
//	half_pending 0 -> 1                          (first half, no balance change)
//	balance-1, half_pending 1 -> 0 if balance>=1 (second half, logged debit)
//
// When the second arm fails on insufficient balance the pending half is
// kept, so it still counts once the account is topped up.
func (s *Service) ConsumeHalf(ctx context.Context, accountID string, kind, referenceID string) (*HalfResult, error) {
	// Two attempts cover the race where another request collapses the pair
	// between our first and second arm; a retry then lands in the first arm.
	for attempt := 0; attempt < 2; attempt++ {
		res, err := s.db.NewUpdate().
			Model((*models.CreditAccount)(nil)).
			Set("half_pending = 1").
			Set("updated_at = ?", s.clock.Now()).
			Where("id = ?", accountID).
			Where("half_pending = 0").
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("accumulating half credit: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 1 {
			return &HalfResult{OK: true, Consumed: 0}, nil
		}

		var balance int64
		err = s.db.NewUpdate().
			Model((*models.CreditAccount)(nil)).
			Set("balance = balance - 1").
			Set("half_pending = 0").
			Set("updated_at = ?", s.clock.Now()).
			Where("id = ?", accountID).
			Where("half_pending = 1").
			Where("balance >= 1").
			Returning("balance").
			Scan(ctx, &balance)
		if err == nil {
			if err := s.logTransaction(ctx, accountID, -1, kind, models.StateApplied, referenceID, balance); err != nil {
				return nil, err
			}
			return &HalfResult{OK: true, Consumed: 1}, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("consuming half pair: %w", err)
		}

		acct, err := s.account(ctx, accountID)
		if err != nil {
			return nil, err
		}
		if acct.HalfPending == 1 {
			// Accumulator still set: the pair exists but the balance cannot
			// cover it. The half is preserved for a future top-up.
			return &HalfResult{OK: false, Consumed: 0}, nil
		}
		// Accumulator was raced back to 0; try the first arm again.
	}
	return nil, fmt.Errorf("half credit contention on account %s", accountID)
}
