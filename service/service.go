// Package service implements the credit ledger core: account balances with
// lazy monthly rollover, the atomic debit/credit primitives, the
// reserve/confirm/cancel protocol, the half-credit accumulator, and the daily
// free-quota counter glue.
//
// Every invariant-preserving mutation is a single conditional UPDATE (or an
// INSERT that fails safely on a uniqueness constraint) executed by the store.
// The service never reads a balance, checks it in Go, and then writes — two
// concurrent requests could both pass such a check.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/saoki0913/career-compass-sub001/models"
	"github.com/saoki0913/career-compass-sub001/period"
	"github.com/saoki0913/career-compass-sub001/quota"
)

// Service handles the credit ledger logic
type Service struct {
	db      *bun.DB
	clock   *period.Clock
	counter quota.Counter
	plans   *xsync.MapOf[string, models.PlanSpec] // cache for plan specs
}

// NewService creates a new credit ledger service. The counter decides where
// the daily free-quota lives (Postgres by default, Redis optionally).
func NewService(db *bun.DB, counter quota.Counter, clock *period.Clock) *Service {
	return &Service{
		db:      db,
		clock:   clock,
		counter: counter,
		plans:   xsync.NewMapOf[string, models.PlanSpec](),
	}
}

// DB returns the underlying bun.DB instance for admin operations
func (s *Service) DB() *bun.DB {
	return s.db
}

// Clock returns the reporting-timezone clock.
func (s *Service) Clock() *period.Clock {
	return s.clock
}

// Snapshot is the ledger state reported to callers.
type Snapshot struct {
	AccountID         string
	Balance           int64
	MonthlyAllocation int64
	HalfPending       bool
	LastResetAt       time.Time
	NextResetAt       time.Time
}

// Info combines the ledger snapshot with the account's daily free quota,
// resolved through its plan. Used by the HTTP middleware for headers.
type Info struct {
	Snapshot
	DailyFreeLimit     int64
	DailyFreeRemaining int64
}

// DailyRemaining returns the free operations left today for an identity.
func (s *Service) DailyRemaining(ctx context.Context, identityKey string, limit int64) (int64, error) {
	return s.counter.Remaining(ctx, identityKey, limit)
}

// DailyIncrement records one consumed free operation for today. Callers
// invoke it only after verifying remaining quota and only on success.
func (s *Service) DailyIncrement(ctx context.Context, identityKey string) error {
	return s.counter.Increment(ctx, identityKey)
}

// Transactions returns the most recent audit entries for an account.
func (s *Service) Transactions(ctx context.Context, accountID string, limit int) ([]models.CreditTransaction, error) {
	var txs []models.CreditTransaction
	q := s.db.NewSelect().
		Model(&txs).
		Where("account_id = ?", accountID).
		OrderExpr("created_at DESC, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return txs, nil
}

// Info returns the ledger snapshot plus the daily free quota derived from
// the account's plan. Accounts without a plan report a zero free quota.
func (s *Service) Info(ctx context.Context, accountID string) (*Info, error) {
	acct, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}

	info := &Info{Snapshot: s.snapshot(acct)}

	if acct.PlanID != "" {
		spec, err := s.planSpec(ctx, acct.PlanID)
		if err != nil {
			return nil, err
		}
		info.DailyFreeLimit = spec.DailyFree
		if spec.DailyFree > 0 {
			remaining, err := s.counter.Remaining(ctx, accountID, spec.DailyFree)
			if err != nil {
				return nil, fmt.Errorf("reading daily quota: %w", err)
			}
			info.DailyFreeRemaining = remaining
		}
	}

	return info, nil
}

// planSpec gets a plan's spec, decoding the MessagePack payload at most once
// per plan id.
func (s *Service) planSpec(ctx context.Context, planID string) (models.PlanSpec, error) {
	if cached, ok := s.plans.Load(planID); ok {
		return cached, nil
	}

	var payload []byte
	err := s.db.NewSelect().
		Model((*models.Plan)(nil)).
		Column("payload").
		Where("id = ?", planID).
		Scan(ctx, &payload)
	if err != nil {
		return models.PlanSpec{}, fmt.Errorf("finding plan %s: %w", planID, err)
	}

	var spec models.PlanSpec
	if err := msgpack.Unmarshal(payload, &spec); err != nil {
		return models.PlanSpec{}, fmt.Errorf("unmarshaling plan spec: %w", err)
	}

	s.plans.Store(planID, spec)
	return spec, nil
}

// InvalidatePlan drops a cached plan spec after an admin update.
func (s *Service) InvalidatePlan(planID string) {
	s.plans.Delete(planID)
}

func (s *Service) snapshot(acct *models.CreditAccount) Snapshot {
	return Snapshot{
		AccountID:         acct.ID,
		Balance:           acct.Balance,
		MonthlyAllocation: acct.MonthlyAllocation,
		HalfPending:       acct.HalfPending == 1,
		LastResetAt:       acct.LastResetAt,
		NextResetAt:       s.clock.NextReset(acct.LastResetAt),
	}
}
