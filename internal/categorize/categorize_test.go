package categorize

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/finhub/internal/database/repositories"
	"github.com/aristath/finhub/internal/database/repositories/repotest"
)

func newCategorizer(t *testing.T) *Categorizer {
	t.Helper()
	db := repotest.NewDB(t)
	merchants := repositories.NewMerchantRepository(db, zerolog.Nop())
	return New(merchants, nil, zerolog.Nop())
}

func TestCategorizeMatchesRuleTable(t *testing.T) {
	c := newCategorizer(t)
	result := c.Categorize(context.Background(), []Input{
		{ID: "t1", Description: "AMAZON MKTPL US"},
		{ID: "t2", Description: "NETFLIX.COM"},
		{ID: "t3", Description: "SHELL OIL 12345"},
	})
	assert.Equal(t, "shopping", result["t1"])
	assert.Equal(t, "subscriptions", result["t2"])
	assert.Equal(t, "gas", result["t3"])
}

func TestCategorizeFallsBackToOtherWithNoLLM(t *testing.T) {
	c := newCategorizer(t)
	result := c.Categorize(context.Background(), []Input{
		{ID: "t1", Description: "Totally Unrecognized Merchant LLC"},
	})
	assert.Equal(t, "other", result["t1"])
}

func TestCategorizeUsesCacheOnSecondCall(t *testing.T) {
	c := newCategorizer(t)
	ctx := context.Background()

	first := c.Categorize(ctx, []Input{{ID: "t1", Description: "Walmart Supercenter"}})
	require.Equal(t, "shopping", first["t1"])

	require.NoError(t, c.merchants.RecordCategory(ctx, "renamed merchant xyz", "dining", "ai"))
	second := c.Categorize(ctx, []Input{{ID: "t2", Description: "Renamed Merchant XYZ"}})
	assert.Equal(t, "dining", second["t2"])
}

func TestCategorizeFirstDecisionWinsAcrossCalls(t *testing.T) {
	c := newCategorizer(t)
	ctx := context.Background()

	c.Categorize(ctx, []Input{{ID: "t1", Description: "AMAZON MKTPL US"}})
	require.NoError(t, c.merchants.RecordCategory(ctx, "amazon mktpl us", "other", "ai"))

	category, ok, err := c.merchants.CategoryFor(ctx, "amazon mktpl us")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "shopping", category)
}
