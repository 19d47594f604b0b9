package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Transaction lifecycle states. A reservation is already debited; the state
// only records whether the debit is provisional, finalized, or refunded.
const (
	StateApplied   = "applied"
	StateReserved  = "reserved"
	StateConfirmed = "confirmed"
	StateCancelled = "cancelled"
)

// Built-in transaction kinds. Debits carry a caller-supplied usage tag
// (e.g. "es_review") instead of one of these.
const (
	KindGrant      = "grant"
	KindPlanChange = "plan_change"
	KindRefund     = "refund"
)

// CreditAccount is the per-account ledger row. Balance is the single source
// of truth; it never goes negative (conditional updates plus a CHECK constraint).
type CreditAccount struct {
	bun.BaseModel `bun:"table:credits.account,alias:ca"`

	ID                string    `bun:"id,pk"`
	PlanID            string    `bun:"plan_id,nullzero"`
	Balance           int64     `bun:"balance,notnull"`
	MonthlyAllocation int64     `bun:"monthly_allocation,notnull"`
	HalfPending       int16     `bun:"half_pending,notnull,default:0"`
	LastResetAt       time.Time `bun:"last_reset_at,notnull"`
	CreatedAt         time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// CreditTransaction is one append-only audit entry. Amount is signed:
// negative for debits, positive for grants and refunds. The row id doubles
// as the reservation handle.
type CreditTransaction struct {
	bun.BaseModel `bun:"table:credits.transaction,alias:ct"`

	ID           string    `bun:"id,pk,type:uuid"`
	AccountID    string    `bun:"account_id,notnull"`
	Amount       int64     `bun:"amount,notnull"`
	Kind         string    `bun:"kind,notnull"`
	State        string    `bun:"state,notnull"`
	ReferenceID  string    `bun:"reference_id,nullzero"`
	BalanceAfter int64     `bun:"balance_after,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// DailyQuota counts free operations per identity per calendar day in the
// reporting timezone. One row per (identity, day); a new day gets a new row.
type DailyQuota struct {
	bun.BaseModel `bun:"table:credits.daily_quota,alias:dq"`

	IdentityKey string `bun:"identity_key,pk"`
	Day         string `bun:"day,pk"`
	Count       int64  `bun:"count,notnull"`
}

// PlanSpec is the decoded plan payload: what a tier grants per month and
// how many free operations it allows per day.
type PlanSpec struct {
	MonthlyCredits int64 `msgpack:"monthly_credits" yaml:"monthly_credits"`
	DailyFree      int64 `msgpack:"daily_free" yaml:"daily_free"`
}

// Plan stores a plan specification in the database
type Plan struct {
	bun.BaseModel `bun:"table:credits.plan"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	Payload   []byte    `bun:"payload,notnull"` // MessagePack encoded PlanSpec
	IsDefault bool      `bun:"is_default"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// DefaultPlan represents the current default plan
type DefaultPlan struct {
	bun.BaseModel `bun:"table:credits.default_plan"`

	PlanID    string    `bun:"plan_id,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
