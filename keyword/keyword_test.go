package keyword

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	assert := assert.New(t)

	m, err := NewModel(
		map[string]int{"Bad": 6, "worse": 8},
		map[string]int{"war": 2},
		[]string{"peace"},
	)
	assert.NoError(err)

	txt := Normalize("A BAD and worse SOFTWARE release, in peace")
	assert.Equal([]Term{{Text: "bad", Weight: 6}, {Text: "worse", Weight: 8}}, m.Match(Critical, txt))
	// substring, not token
	assert.Equal([]Term{{Text: "war", Weight: 2}}, m.Match(Contextual, txt))
	assert.Equal([]Term{{Text: "peace", Weight: PositivePenalty}}, m.Match(Positive, txt))
	assert.Nil(m.Match(Critical, ""))
	assert.Nil(m.Match(Critical, "nothing here"))
}

func TestNormalizeUnicode(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("gdańsk", Normalize("GDAŃSK"))
	assert.Equal("straße", Normalize("STRAßE"))
}

func TestNewModelDropsInvalid(t *testing.T) {
	assert := assert.New(t)

	m, err := NewModel(
		map[string]int{"ok": 3, "neg": -1, "  ": 4},
		map[string]int{"Dup": 1, "dup": 5},
		nil,
	)
	assert.Error(err)
	assert.Equal([]Term{{Text: "ok", Weight: 3}}, m.Terms(Critical))
	assert.Equal([]Term{{Text: "dup", Weight: 5}}, m.Terms(Contextual))
	assert.Empty(m.Terms(Positive))
}

func TestEmptyModel(t *testing.T) {
	assert := assert.New(t)

	var nilModel *Model
	assert.True(nilModel.IsEmpty())
	assert.Nil(nilModel.Match(Critical, "anything"))
	assert.True(Empty().IsEmpty())
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()

	camel := filepath.Join(dir, "keywords.json")
	require.NoError(t, os.WriteFile(camel, []byte(`{
		"criticalKeywords": {"alpha": 6},
		"contextualKeywords": {"beta": 2},
		"positiveKeywords": ["gamma"]
	}`), 0o644))
	m, err := Load(camel)
	assert.NoError(err)
	c, x, p := m.Size()
	assert.Equal([]int{1, 1, 1}, []int{c, x, p})

	snake := filepath.Join(dir, "legacy.json")
	require.NoError(t, os.WriteFile(snake, []byte(`{
		"critical_keywords": {"alpha": 6, "delta": 4},
		"contextual_keywords": {},
		"positive_keywords": ["gamma", "epsilon"]
	}`), 0o644))
	m, err = Load(snake)
	assert.NoError(err)
	c, x, p = m.Size()
	assert.Equal([]int{2, 0, 2}, []int{c, x, p})

	yml := filepath.Join(dir, "keywords.yaml")
	require.NoError(t, os.WriteFile(yml, []byte("criticalKeywords:\n  alpha: 6\npositiveKeywords:\n  - gamma\n"), 0o644))
	m, err = Load(yml)
	assert.NoError(err)
	c, x, p = m.Size()
	assert.Equal([]int{1, 0, 1}, []int{c, x, p})

	// degraded, never nil
	m, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(err)
	assert.NotNil(m)
	assert.True(m.IsEmpty())

	broken := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(`{"criticalKeywords": {"alpha": "six"}}`), 0o644))
	m, err = Load(broken)
	assert.Error(err)
	assert.True(m.IsEmpty())
}
