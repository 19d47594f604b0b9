package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/saoki0913/career-compass-sub001/models"
)

// ReserveResult reports the outcome of a reservation attempt. A reservation
// is a debit: Balance already excludes the held amount when OK is true.
type ReserveResult struct {
	OK            bool
	ReservationID string
	Balance       int64
}

// Reserve holds credits for an operation of uncertain outcome. It is the
// same conditional debit as Consume, but the audit entry is logged in the
// reserved state and its id is handed back for Confirm/Cancel.
func (s *Service) Reserve(ctx context.Context, accountID string, amount int64, kind, referenceID string) (*ReserveResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %d", amount)
	}

	balance, ok, err := s.conditionalDebit(ctx, accountID, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &ReserveResult{OK: false, Balance: balance}, nil
	}

	entry := &models.CreditTransaction{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Amount:       -amount,
		Kind:         kind,
		State:        models.StateReserved,
		ReferenceID:  referenceID,
		BalanceAfter: balance,
		CreatedAt:    s.clock.Now(),
	}
	if _, err := s.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		// The debit is already applied; without a handle the caller cannot
		// resolve it, so surface the failure instead of pretending success.
		return nil, fmt.Errorf("appending reservation: %w", err)
	}

	return &ReserveResult{OK: true, ReservationID: entry.ID, Balance: balance}, nil
}

// Confirm finalizes a reservation. No balance change — the debit happened at
// reserve time. Confirming an unknown, confirmed, or cancelled reservation
// is a no-op so retries under network uncertainty are safe.
func (s *Service) Confirm(ctx context.Context, reservationID string) error {
	_, err := s.db.NewUpdate().
		Model((*models.CreditTransaction)(nil)).
		Set("state = ?", models.StateConfirmed).
		Set("balance_after = (SELECT balance FROM credits.account WHERE id = ct.account_id)").
		Where("id = ?", reservationID).
		Where("state = ?", models.StateReserved).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("confirming reservation: %w", err)
	}
	return nil
}

// Cancel refunds a reservation. The reserved->cancelled state flip is the
// atomic guard: only the caller that wins it performs the refund, so a
// second Cancel observes the cancelled state and no-ops. The flip and the
// refund commit together, so a failure between them rolls the flip back and
// a retry still finds the reservation refundable. Cancelling a confirmed
// reservation is rejected.
func (s *Service) Cancel(ctx context.Context, reservationID string) error {
	flipped := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var accountID string
		var amount int64
		err := tx.NewUpdate().
			Model((*models.CreditTransaction)(nil)).
			Set("state = ?", models.StateCancelled).
			Where("id = ?", reservationID).
			Where("state = ?", models.StateReserved).
			Returning("account_id, amount").
			Scan(ctx, &accountID, &amount)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("cancelling reservation: %w", err)
		}
		flipped = true

		if amount < 0 {
			amount = -amount
		}

		var balance int64
		err = tx.NewUpdate().
			Model((*models.CreditAccount)(nil)).
			Set("balance = balance + ?", amount).
			Set("updated_at = ?", s.clock.Now()).
			Where("id = ?", accountID).
			Returning("balance").
			Scan(ctx, &balance)
		if err != nil {
			return fmt.Errorf("refunding reservation: %w", err)
		}

		// Record the post-refund balance on the cancelled entry. The entry is
		// excluded from the ledger sum from the state flip on, which is
		// exactly offset by the refund above.
		_, err = tx.NewUpdate().
			Model((*models.CreditTransaction)(nil)).
			Set("balance_after = ?", balance).
			Where("id = ?", reservationID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("updating cancelled entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !flipped {
		return s.rejectIfConfirmed(ctx, reservationID)
	}
	return nil
}

// rejectIfConfirmed distinguishes the forbidden confirmed->cancel transition
// from harmless retries against unknown or already-cancelled ids.
func (s *Service) rejectIfConfirmed(ctx context.Context, reservationID string) error {
	var state string
	err := s.db.NewSelect().
		Model((*models.CreditTransaction)(nil)).
		Column("state").
		Where("id = ?", reservationID).
		Scan(ctx, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking reservation state: %w", err)
	}
	if state == models.StateConfirmed {
		return ErrReservationConfirmed
	}
	return nil
}

// CancelExpired refunds reservations older than the given age. This is the
// sweep for dangling reservations left behind by callers that never
// confirmed or cancelled; each refund goes through the normal Cancel path,
// so racing with a late Confirm or Cancel stays safe.
func (s *Service) CancelExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-olderThan)

	var ids []string
	err := s.db.NewSelect().
		Model((*models.CreditTransaction)(nil)).
		Column("id").
		Where("state = ?", models.StateReserved).
		Where("created_at < ?", cutoff).
		Scan(ctx, &ids)
	if err != nil {
		return 0, fmt.Errorf("finding expired reservations: %w", err)
	}

	refunded := 0
	for _, id := range ids {
		if err := s.Cancel(ctx, id); err != nil {
			if errors.Is(err, ErrReservationConfirmed) {
				continue
			}
			return refunded, err
		}
		refunded++
	}
	return refunded, nil
}
