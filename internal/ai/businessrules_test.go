package ai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBusinessRulesJSON(t *testing.T) {
	t.Parallel()
	nested, err := ParseBusinessRulesJSON([]byte(`{"rulesByEndpointPath": {"/users": ["age must be greater than 18", "email is required"]}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"age must be greater than 18", "email is required"}, nested.For("/users"))

	flat, err := ParseBusinessRulesJSON([]byte(`{"/orders": "total is positive", "/skip": 3}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"total is positive"}, flat.For("/orders"))
	assert.Empty(t, flat.For("/skip"))

	_, err = ParseBusinessRulesJSON([]byte(`{`))
	require.Error(t, err)
}

func TestParseBusinessRulesMarkdown(t *testing.T) {
	t.Parallel()
	rules := ParseBusinessRulesMarkdown(`# Requirements
intro text without a path
- ignored before any path heading

## /users
- users must be adults
* email is required

### /orders/
- /users/{id}: id is numeric
-

- total is positive
`)
	assert.Equal(t, []string{"users must be adults", "email is required"}, rules.For("/users"))
	assert.Equal(t, []string{"id is numeric"}, rules.For("/users/{id}"))
	assert.Equal(t, []string{"total is positive"}, rules.For("/orders"), "trailing slash is ignored on lookup")
	assert.Equal(t, []string{"/users", "/users/{id}", "/orders/"}, rules.Paths())
}

func TestBusinessRules_NilIsEmpty(t *testing.T) {
	t.Parallel()
	var rules *BusinessRules
	assert.Nil(t, rules.For("/users"))
}

func TestLoadBusinessRules(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "rules.JSON")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"/a": ["x"]}`), 0o644))
	mdPath := filepath.Join(dir, "rules.md")
	require.NoError(t, os.WriteFile(mdPath, []byte("# /a\n- y\n"), 0o644))

	fromJSON, err := LoadBusinessRules(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, fromJSON.For("/a"))

	fromMD, err := LoadBusinessRules(mdPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, fromMD.For("/a"))

	_, err = LoadBusinessRules(filepath.Join(dir, "missing.md"))
	require.Error(t, err)
}
