package admin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saoki0913/career-compass-sub001/admin"
)

const plansYAML = `
plans:
  free:
    name: Free
    is_default: true
    monthly_credits: 30
    daily_free: 3
  premium:
    name: Premium
    monthly_credits: 300
    daily_free: 10
`

func TestParsePlans(t *testing.T) {
	plans, err := admin.ParsePlans([]byte(plansYAML))
	require.NoError(t, err)
	require.Len(t, plans, 2)

	free := plans["free"]
	assert.Equal(t, "Free", free.Name)
	assert.True(t, free.IsDefault)
	assert.Equal(t, int64(30), free.Spec.MonthlyCredits)
	assert.Equal(t, int64(3), free.Spec.DailyFree)

	premium := plans["premium"]
	assert.False(t, premium.IsDefault)
	assert.Equal(t, int64(300), premium.Spec.MonthlyCredits)
}

func TestParsePlans_RejectsNegativeAmounts(t *testing.T) {
	_, err := admin.ParsePlans([]byte(`
plans:
  broken:
    name: Broken
    monthly_credits: -5
`))
	assert.Error(t, err)
}

func TestParsePlans_RejectsInvalidYAML(t *testing.T) {
	_, err := admin.ParsePlans([]byte("plans: ["))
	assert.Error(t, err)
}
