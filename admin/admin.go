// Package admin manages plan specifications: loading them from YAML,
// storing them MessagePack-encoded in the database, and assigning them to
// accounts. The plan manager that decides *when* a tier changes stays
// external; this package only persists what a tier is worth.
package admin

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/uptrace/bun"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/saoki0913/career-compass-sub001/models"
)

// Plan represents a plan tier configuration
type Plan struct {
	Name      string          `yaml:"name"`
	IsDefault bool            `yaml:"is_default"`
	Spec      models.PlanSpec `yaml:",inline"`
}

// Plans is a map of plan ID to plan configuration
type Plans map[string]Plan

// YAMLConfig represents the structure of the YAML configuration file
type YAMLConfig struct {
	Plans Plans `yaml:"plans"`
}

// LoadPlansFromFile loads plans from a YAML file
func LoadPlansFromFile(path string) (Plans, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParsePlans(data)
}

// ParsePlans parses plans from YAML bytes.
func ParsePlans(data []byte) (Plans, error) {
	var config YAMLConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	for id, plan := range config.Plans {
		if plan.Spec.MonthlyCredits < 0 || plan.Spec.DailyFree < 0 {
			return nil, fmt.Errorf("plan %s: negative credit amounts", id)
		}
	}
	return config.Plans, nil
}

// ApplyPlans applies the plan configurations to the database. Live services
// cache decoded specs, so callers updating an existing plan must drop the
// cached entry afterwards with Service.InvalidatePlan.
func ApplyPlans(ctx context.Context, db *bun.DB, plans Plans) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Clear existing default plan if we're adding a new one
	for _, plan := range plans {
		if plan.IsDefault {
			_, err = tx.NewUpdate().
				Model((*models.Plan)(nil)).
				Set("is_default = ?", false).
				Where("is_default = ?", true).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("clearing default plan: %w", err)
			}
			break
		}
	}

	// Insert or update plans
	for id, plan := range plans {
		payload, err := msgpack.Marshal(plan.Spec)
		if err != nil {
			return fmt.Errorf("encoding plan spec: %w", err)
		}

		_, err = tx.NewInsert().
			Model(&models.Plan{
				ID:        id,
				Name:      plan.Name,
				Payload:   payload,
				IsDefault: plan.IsDefault,
			}).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("payload = EXCLUDED.payload").
			Set("is_default = EXCLUDED.is_default").
			Set("updated_at = ?", time.Now()).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upserting plan: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// AssignPlan records a plan on an account row. The balance effect of the
// tier change is applied separately through Service.ChangeAllocation with
// the new plan's monthly credits.
func AssignPlan(ctx context.Context, db *bun.DB, accountID, planID string) error {
	_, err := db.NewUpdate().
		Model((*models.CreditAccount)(nil)).
		Set("plan_id = ?", planID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	return nil
}

// GetPlan gets a plan by ID
func GetPlan(ctx context.Context, db *bun.DB, planID string) (*Plan, error) {
	var dbPlan models.Plan
	err := db.NewSelect().
		Model(&dbPlan).
		Where("id = ?", planID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding plan: %w", err)
	}

	var spec models.PlanSpec
	if err := msgpack.Unmarshal(dbPlan.Payload, &spec); err != nil {
		return nil, fmt.Errorf("unmarshaling plan spec: %w", err)
	}

	return &Plan{
		Name:      dbPlan.Name,
		IsDefault: dbPlan.IsDefault,
		Spec:      spec,
	}, nil
}

// GetAccountPlan gets the current plan for an account
func GetAccountPlan(ctx context.Context, db *bun.DB, accountID string) (*Plan, error) {
	var planID string
	err := db.NewSelect().
		Model((*models.CreditAccount)(nil)).
		Column("plan_id").
		Where("id = ?", accountID).
		Scan(ctx, &planID)
	if err != nil {
		return nil, fmt.Errorf("finding account: %w", err)
	}
	if planID == "" {
		return nil, fmt.Errorf("account %s has no plan", accountID)
	}
	return GetPlan(ctx, db, planID)
}

// ListPlans lists all available plans
func ListPlans(ctx context.Context, db *bun.DB) (Plans, error) {
	var dbPlans []models.Plan
	err := db.NewSelect().
		Model(&dbPlans).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}

	plans := make(Plans)
	for _, dbPlan := range dbPlans {
		var spec models.PlanSpec
		if err := msgpack.Unmarshal(dbPlan.Payload, &spec); err != nil {
			return nil, fmt.Errorf("unmarshaling plan spec: %w", err)
		}

		plans[dbPlan.ID] = Plan{
			Name:      dbPlan.Name,
			IsDefault: dbPlan.IsDefault,
			Spec:      spec,
		}
	}
	return plans, nil
}

// DeletePlan deletes a plan if it's not in use
func DeletePlan(ctx context.Context, db *bun.DB, planID string) error {
	exists, err := db.NewSelect().
		Model((*models.CreditAccount)(nil)).
		Where("plan_id = ?", planID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("checking plan usage: %w", err)
	}
	if exists {
		return fmt.Errorf("plan is in use by one or more accounts")
	}

	_, err = db.NewDelete().
		Model((*models.Plan)(nil)).
		Where("id = ?", planID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deleting plan: %w", err)
	}
	return nil
}

// SetDefaultPlan sets a plan as the default
func SetDefaultPlan(ctx context.Context, db *bun.DB, planID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	exists, err := tx.NewSelect().
		Model((*models.Plan)(nil)).
		Where("id = ?", planID).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("checking plan existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("plan %s does not exist", planID)
	}

	_, err = tx.NewDelete().
		Model((*models.DefaultPlan)(nil)).
		Where("1 = 1").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("clearing default plan: %w", err)
	}

	_, err = tx.NewInsert().
		Model(&models.DefaultPlan{
			PlanID: planID,
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("setting default plan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// GetDefaultPlan gets the current default plan
func GetDefaultPlan(ctx context.Context, db *bun.DB) (*Plan, error) {
	var defaultPlan models.DefaultPlan
	err := db.NewSelect().
		Model(&defaultPlan).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding default plan: %w", err)
	}
	return GetPlan(ctx, db, defaultPlan.PlanID)
}
