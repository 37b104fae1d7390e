package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/valueboard/internal/model"
)

func TestCandidateKeys(t *testing.T) {
	assert.Equal(t, []string{"openai-gpt-4o-mini", "gpt-4o-mini"}, CandidateKeys("openai/gpt-4o-mini"))
	assert.Equal(t, []string{"gpt-4o-2024-05-13", "gpt-4o"}, CandidateKeys("gpt-4o-2024-05-13"))
	assert.Equal(t,
		[]string{"anthropic-claude-3-5-sonnet-20241022", "anthropic-claude-3-5-sonnet", "claude-3-5-sonnet-20241022", "claude-3-5-sonnet"},
		CandidateKeys("anthropic/claude-3.5-sonnet-20241022"),
	)
	assert.Equal(t, []string{"openai"}, CandidateKeys("openai/"))
	assert.Empty(t, CandidateKeys("  "))
}

func TestIndex_PathTailMatchesSlug(t *testing.T) {
	idx := BuildIndex([]model.CatalogEntry{{ID: "m1", Slug: "gpt-4o-mini"}})

	m, ok := idx.Lookup("openai/gpt-4o-mini")
	require.True(t, ok)
	assert.Equal(t, "m1", m.ID)
}

func TestIndex_VendorKeys(t *testing.T) {
	idx := BuildIndex([]model.CatalogEntry{
		{ID: "m1", Slug: "claude-3-5-sonnet", VendorSlug: "anthropic", CanonicalName: "Claude 3.5 Sonnet"},
	})

	for _, id := range []string{
		"anthropic/claude-3.5-sonnet-20241022",
		"anthropic-claude-3-5-sonnet",
		"Claude 3.5 Sonnet",
		"claude-3-5-sonnet-latest",
	} {
		m, ok := idx.Lookup(id)
		assert.True(t, ok, id)
		assert.Equal(t, "m1", m.ID, id)
	}
}

func TestIndex_FirstInsertionWins(t *testing.T) {
	idx := BuildIndex([]model.CatalogEntry{
		{ID: "first", Slug: "alpha-one", Aliases: []string{"shared"}},
		{ID: "second", Slug: "beta-two", Aliases: []string{"shared"}},
	})

	m, ok := idx.Lookup("shared")
	require.True(t, ok)
	assert.Equal(t, "first", m.ID)

	m, ok = idx.Lookup("beta-two")
	require.True(t, ok)
	assert.Equal(t, "second", m.ID)
}

func TestIndex_IsIndependentPerBuild(t *testing.T) {
	a := BuildIndex([]model.CatalogEntry{{ID: "m1", Slug: "gpt-4o"}})
	b := BuildIndex([]model.CatalogEntry{{ID: "m2", Slug: "o1"}})

	_, ok := a.Lookup("o1")
	assert.False(t, ok)
	_, ok = b.Lookup("gpt-4o")
	assert.False(t, ok)
	assert.Equal(t, 1, b.Len())
}

func TestMatchPricing(t *testing.T) {
	idx := BuildIndex([]model.CatalogEntry{
		{ID: "m1", Slug: "gpt-4o-mini", VendorSlug: "openai"},
		{ID: "m2", Slug: "mistral-large", VendorSlug: "mistral"},
	})
	rows := []model.RawPrice{
		{ExternalModelID: "openai/gpt-4o-mini"},
		{ExternalModelID: "unknown/thing"},
		{ExternalModelID: "mistral-large-latest"},
		{ExternalModelID: "ghost-model"},
	}

	matched, missing := MatchPricing(idx, rows)
	require.Len(t, matched, 2)
	assert.Equal(t, "m1", matched[0].Model.ID)
	assert.Equal(t, "openai/gpt-4o-mini", matched[0].Row.ExternalModelID)
	assert.Equal(t, "m2", matched[1].Model.ID)
	assert.Equal(t, []string{"unknown/thing", "ghost-model"}, missing)
}
