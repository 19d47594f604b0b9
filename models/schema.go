package models

// Migrations returns the schema DDL in apply order. Each string is a single
// statement so cmd/migrate can record progress per statement batch and the
// integration tests can bootstrap a throwaway database.
func Migrations() []string {
	return []string{
		`CREATE SCHEMA IF NOT EXISTS credits`,

		`CREATE TABLE IF NOT EXISTS credits.account (
			id                 TEXT PRIMARY KEY,
			plan_id            TEXT,
			balance            BIGINT NOT NULL CHECK (balance >= 0),
			monthly_allocation BIGINT NOT NULL,
			half_pending       SMALLINT NOT NULL DEFAULT 0 CHECK (half_pending IN (0, 1)),
			last_reset_at      TIMESTAMPTZ NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS credits.transaction (
			id            UUID PRIMARY KEY,
			account_id    TEXT NOT NULL,
			amount        BIGINT NOT NULL,
			kind          TEXT NOT NULL,
			state         TEXT NOT NULL,
			reference_id  TEXT,
			balance_after BIGINT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_account ON credits.transaction (account_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_reserved ON credits.transaction (state, created_at) WHERE state = 'reserved'`,

		`CREATE TABLE IF NOT EXISTS credits.daily_quota (
			identity_key TEXT NOT NULL,
			day          TEXT NOT NULL,
			count        BIGINT NOT NULL,
			PRIMARY KEY (identity_key, day)
		)`,

		`CREATE TABLE IF NOT EXISTS credits.plan (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			payload    BYTEA NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS credits.default_plan (
			plan_id    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
}
