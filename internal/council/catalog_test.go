package council

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)

	councils := c.Councils()
	require.Len(t, councils, 5)
	assert.Equal(t, "strategic-intelligence", councils[0].ID)

	growth, ok := c.Council("growth-experimentation")
	require.True(t, ok)
	assert.False(t, growth.IsActive)

	for _, module := range []string{"category-visibility", "competitive-landscape", "demand-coverage", "strategic-fit"} {
		ids := c.CouncilsFor(module)
		require.NotEmpty(t, ids, module)
		a, ok := c.Assignment(module)
		require.True(t, ok)
		assert.Equal(t, a.Owner, ids[0])
	}

	owns, supports := c.ModulesOf("demand-signals")
	assert.Equal(t, []string{"category-visibility", "demand-coverage"}, owns)
	assert.Empty(t, supports)

	owns, supports = c.ModulesOf("risk-governance")
	assert.Empty(t, owns)
	assert.Equal(t, []string{"category-visibility", "competitive-landscape", "strategic-fit"}, supports)
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"syntax":          `[[councils]`,
		"empty":           "",
		"missing id":      "[[councils]]\nname = \"x\"\n",
		"duplicate":       "[[councils]]\nid = \"a\"\n[[councils]]\nid = \"a\"\n",
		"authority range": "[[councils]]\nid = \"a\"\ndecision_authority = 2.0\n",
		"unknown owner":   "[[councils]]\nid = \"a\"\n[[modules]]\nid = \"m\"\nowner = \"b\"\n",
		"unknown support": "[[councils]]\nid = \"a\"\n[[modules]]\nid = \"m\"\nowner = \"a\"\nsupporting = [\"c\"]\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "councils.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[councils]]
id = "solo"
name = "Solo"
is_active = true
decision_authority = 1.0

[[modules]]
id = "strategic-fit"
owner = "solo"
`), 0o600))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"solo"}, c.CouncilsFor("strategic-fit"))
	assert.Nil(t, c.CouncilsFor("demand-coverage"))

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	def, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Len(t, def.Councils(), 5)
}
