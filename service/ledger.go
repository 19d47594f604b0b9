package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/saoki0913/career-compass-sub001/models"
)

// ConsumeResult reports the outcome of a debit attempt. OK=false means the
// conditional decrement found insufficient balance; Balance then carries the
// current balance so call sites can surface an upgrade prompt.
type ConsumeResult struct {
	OK      bool
	Balance int64
}

// GetOrInit returns the ledger state for an account, creating the row on
// first sight and applying the lazy monthly rollover when it is due.
func (s *Service) GetOrInit(ctx context.Context, accountID string, planAllocation int64) (*Snapshot, error) {
	now := s.clock.Now()

	// Seed the row. ON CONFLICT DO NOTHING makes concurrent first reads safe:
	// exactly one caller wins the insert and logs the initial grant.
	seed := &models.CreditAccount{
		ID:                accountID,
		Balance:           planAllocation,
		MonthlyAllocation: planAllocation,
		HalfPending:       0,
		LastResetAt:       now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	res, err := s.db.NewInsert().
		Model(seed).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("seeding account: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 1 {
		if err := s.logTransaction(ctx, accountID, planAllocation, models.KindGrant, models.StateApplied, "", planAllocation); err != nil {
			return nil, err
		}
		snap := s.snapshot(seed)
		return &snap, nil
	}

	acct, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if s.clock.RolloverDue(acct.LastResetAt) {
		// Full reset to the allocation, not additive. The CAS on
		// last_reset_at means two concurrent readers grant at most once.
		var balance int64
		err := s.db.NewUpdate().
			Model((*models.CreditAccount)(nil)).
			Set("balance = monthly_allocation").
			Set("last_reset_at = ?", now).
			Set("updated_at = ?", now).
			Where("id = ?", accountID).
			Where("last_reset_at = ?", acct.LastResetAt).
			Returning("balance").
			Scan(ctx, &balance)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// Lost the rollover race; the winner already reset the row.
		case err != nil:
			return nil, fmt.Errorf("monthly rollover: %w", err)
		default:
			if err := s.logTransaction(ctx, accountID, balance-acct.Balance, models.KindGrant, models.StateApplied, "", balance); err != nil {
				return nil, err
			}
		}

		if acct, err = s.account(ctx, accountID); err != nil {
			return nil, err
		}
	}

	snap := s.snapshot(acct)
	return &snap, nil
}

// ChangeAllocation applies a plan change: the allocation and the balance are
// hard-reset to the new amount (not topped up) and the monthly window
// restarts now. The logged delta is captured in the same statement so the
// audit amount is exact even under concurrent debits.
func (s *Service) ChangeAllocation(ctx context.Context, accountID string, newAllocation int64) error {
	now := s.clock.Now()

	var oldBalance, newBalance int64
	err := s.db.NewRaw(`
		UPDATE credits.account AS a
		SET monthly_allocation = ?, balance = ?, last_reset_at = ?, updated_at = ?
		FROM (SELECT id, balance FROM credits.account WHERE id = ? FOR UPDATE) AS prev
		WHERE a.id = prev.id
		RETURNING prev.balance, a.balance
	`, newAllocation, newAllocation, now, now, accountID).Scan(ctx, &oldBalance, &newBalance)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("changing allocation: %w", err)
	}

	return s.logTransaction(ctx, accountID, newBalance-oldBalance, models.KindPlanChange, models.StateApplied, "", newBalance)
}

// Consume attempts an atomic conditional debit: balance is decremented only
// if it covers the amount. A failed condition is a business outcome, not an
// error; no transaction is logged for it.
func (s *Service) Consume(ctx context.Context, accountID string, amount int64, kind, referenceID string) (*ConsumeResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %d", amount)
	}

	balance, ok, err := s.conditionalDebit(ctx, accountID, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &ConsumeResult{OK: false, Balance: balance}, nil
	}

	if err := s.logTransaction(ctx, accountID, -amount, kind, models.StateApplied, referenceID, balance); err != nil {
		return nil, err
	}
	return &ConsumeResult{OK: true, Balance: balance}, nil
}

// Grant unconditionally credits an account and always succeeds. The
// description is kept on the audit entry's reference field.
func (s *Service) Grant(ctx context.Context, accountID string, amount int64, kind, description string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive: %d", amount)
	}

	var balance int64
	err := s.db.NewUpdate().
		Model((*models.CreditAccount)(nil)).
		Set("balance = balance + ?", amount).
		Set("updated_at = ?", s.clock.Now()).
		Where("id = ?", accountID).
		Returning("balance").
		Scan(ctx, &balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("granting credits: %w", err)
	}

	if err := s.logTransaction(ctx, accountID, amount, kind, models.StateApplied, description, balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// conditionalDebit is the sole enforcement point of the never-negative
// invariant: a single UPDATE guarded by balance >= amount. On a failed
// condition it re-reads and reports the current balance.
func (s *Service) conditionalDebit(ctx context.Context, accountID string, amount int64) (int64, bool, error) {
	var balance int64
	err := s.db.NewUpdate().
		Model((*models.CreditAccount)(nil)).
		Set("balance = balance - ?", amount).
		Set("updated_at = ?", s.clock.Now()).
		Where("id = ?", accountID).
		Where("balance >= ?", amount).
		Returning("balance").
		Scan(ctx, &balance)
	if err == nil {
		return balance, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("debiting balance: %w", err)
	}

	acct, err := s.account(ctx, accountID)
	if err != nil {
		return 0, false, err
	}
	return acct.Balance, false, nil
}

// logTransaction appends one audit entry and returns nothing callers need;
// the ledger write always happens first, so a failure here leaves the
// balance authoritative and the log one entry behind.
func (s *Service) logTransaction(ctx context.Context, accountID string, amount int64, kind, state, referenceID string, balanceAfter int64) error {
	entry := &models.CreditTransaction{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Amount:       amount,
		Kind:         kind,
		State:        state,
		ReferenceID:  referenceID,
		BalanceAfter: balanceAfter,
		CreatedAt:    s.clock.Now(),
	}
	if _, err := s.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("appending transaction: %w", err)
	}
	return nil
}

func (s *Service) account(ctx context.Context, accountID string) (*models.CreditAccount, error) {
	acct := new(models.CreditAccount)
	err := s.db.NewSelect().
		Model(acct).
		Where("id = ?", accountID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding account: %w", err)
	}
	return acct, nil
}
