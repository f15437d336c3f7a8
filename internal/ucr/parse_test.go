package ucr_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr"
	"github.com/pisanocami/usercontextrecord-sub002/internal/ucr/ucrtest"
)

func fixtureJSON(t *testing.T, mutate func(doc map[string]any)) []byte {
	t.Helper()
	data, err := json.Marshal(ucrtest.ValidConfiguration(time.Now()))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	if mutate != nil {
		mutate(doc)
	}
	out, err := json.Marshal(doc)
	require.NoError(t, err)
	return out
}

func TestParseConfiguration(t *testing.T) {
	t.Run("parses a complete document", func(t *testing.T) {
		cfg, err := ucr.ParseConfiguration(fixtureJSON(t, nil))
		require.NoError(t, err)
		assert.Equal(t, "acme.com", cfg.Brand.Domain)
		assert.Len(t, cfg.NegativeScope.ExcludedKeywords, 1)
		assert.Equal(t, ucr.StatusAIReady, cfg.Governance.Status())
	})

	t.Run("reports missing sections distinctly", func(t *testing.T) {
		data := fixtureJSON(t, func(doc map[string]any) {
			delete(doc, "negative_scope")
			doc["governance"] = nil
		})

		_, err := ucr.ParseConfiguration(data)
		var missing *ucr.MissingSectionsError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, []ucr.Section{ucr.SectionNegativeScope, ucr.SectionGovernance}, missing.Sections)
		assert.False(t, errors.Is(err, ucr.ErrMalformed))
	})

	t.Run("empty section is present", func(t *testing.T) {
		data := fixtureJSON(t, func(doc map[string]any) {
			doc["channel_context"] = map[string]any{}
		})

		cfg, err := ucr.ParseConfiguration(data)
		require.NoError(t, err)
		assert.Empty(t, cfg.ChannelContext.Channels)
	})

	t.Run("rejects unknown enum values", func(t *testing.T) {
		data := fixtureJSON(t, func(doc map[string]any) {
			brand := doc["brand"].(map[string]any)
			brand["business_model"] = "Conglomerate"
		})

		_, err := ucr.ParseConfiguration(data)
		require.ErrorIs(t, err, ucr.ErrMalformed)

		var structural *ucr.StructureError
		require.ErrorAs(t, err, &structural)
		require.Len(t, structural.Fields, 1)
		assert.Equal(t, "brand.business_model", structural.Fields[0].Field)
		assert.Equal(t, "oneof", structural.Fields[0].Rule)
	})

	t.Run("rejects exclusion entries without a value", func(t *testing.T) {
		data := fixtureJSON(t, func(doc map[string]any) {
			scope := doc["negative_scope"].(map[string]any)
			scope["excluded_use_cases"] = []any{map[string]any{"value": "   "}}
		})

		_, err := ucr.ParseConfiguration(data)
		require.ErrorIs(t, err, ucr.ErrMalformed)
	})

	t.Run("rejects unknown approval sections", func(t *testing.T) {
		data := fixtureJSON(t, func(doc map[string]any) {
			gov := doc["governance"].(map[string]any)
			gov["section_approvals"] = map[string]any{
				"pricing": map[string]any{"status": "approved", "approved_by": "x"},
			}
		})

		_, err := ucr.ParseConfiguration(data)
		require.ErrorIs(t, err, ucr.ErrMalformed)
	})

	t.Run("defaults match type to exact", func(t *testing.T) {
		data := fixtureJSON(t, func(doc map[string]any) {
			scope := doc["negative_scope"].(map[string]any)
			scope["excluded_categories"] = []any{map[string]any{"value": " gambling "}}
		})

		cfg, err := ucr.ParseConfiguration(data)
		require.NoError(t, err)
		require.Len(t, cfg.NegativeScope.ExcludedCategories, 1)
		assert.Equal(t, "gambling", cfg.NegativeScope.ExcludedCategories[0].Value)
		assert.Equal(t, ucr.MatchExact, cfg.NegativeScope.ExcludedCategories[0].MatchType)
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		_, err := ucr.ParseConfiguration([]byte("{not json"))
		require.ErrorIs(t, err, ucr.ErrMalformed)
	})
}

func TestConfigurationClone(t *testing.T) {
	orig := ucrtest.ValidConfiguration(time.Now())
	clone := orig.Clone()

	clone.NegativeScope.ExcludedKeywords[0].Value = "changed"
	clone.Competitors.Competitors[0].Domain = "changed.com"
	clone.Governance.SectionApprovals[ucr.SectionBrand] = ucr.SectionApproval{}
	*clone.Governance.ContextValidUntil = time.Time{}

	assert.Equal(t, "layoffs", orig.NegativeScope.ExcludedKeywords[0].Value)
	assert.Equal(t, "globex.com", orig.Competitors.Competitors[0].Domain)
	assert.True(t, orig.Governance.Approved(ucr.SectionBrand))
	assert.False(t, orig.Governance.ContextValidUntil.IsZero())
}

func TestExclusionEntryExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, ucr.ExclusionEntry{Value: "x"}.Active(now), "no ttl is permanent")
	assert.False(t, ucr.ExclusionEntry{Value: "x", TTL: &past}.Active(now))
	assert.True(t, ucr.ExclusionEntry{Value: "x", TTL: &future}.Active(now))
	assert.False(t, ucr.ExclusionEntry{Value: " "}.Active(now))
}

func TestNegativeScopeActiveExclusions(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	n := ucr.NegativeScope{
		ExcludedKeywords:    []ucr.ExclusionEntry{{Value: "layoffs", TTL: &past}},
		ExcludedCompetitors: []ucr.ExclusionEntry{{Value: "globex.com"}},
	}
	assert.Equal(t, 2, n.TotalExclusions())
	assert.Equal(t, 1, n.ActiveExclusions(now))

	n.ExcludedCompetitors[0].TTL = &past
	assert.Equal(t, 0, n.ActiveExclusions(now))
}
