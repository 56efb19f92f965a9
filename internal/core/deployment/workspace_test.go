package deployment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ParseWorkspace Tests
// =============================================================================

func TestParseWorkspace_Full(t *testing.T) {
	doc := `
default_script_dir: bar
remote_ansible_version: "2.9.6"
components:
  - path: a.yml
    base_dir: foo
  - path: b.yml
`
	cfg, err := ParseWorkspace([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "bar", cfg.DefaultScriptDir)
	assert.Equal(t, "2.9.6", cfg.RemoteToolVersion)
	require.Len(t, cfg.Components, 2)
	assert.Equal(t, Component{Path: "a.yml", BaseDir: "foo"}, cfg.Components[0])
	assert.Equal(t, Component{Path: "b.yml"}, cfg.Components[1])
}

func TestParseWorkspace_PreservesDeclarationOrder(t *testing.T) {
	doc := `
default_script_dir: d
components:
  - path: z.yml
  - path: a.yml
  - path: m.yml
`
	cfg, err := ParseWorkspace([]byte(doc))
	require.NoError(t, err)

	var paths []string
	for _, c := range cfg.Components {
		paths = append(paths, c.Path)
	}
	assert.Equal(t, []string{"z.yml", "a.yml", "m.yml"}, paths)
}

func TestParseWorkspace_EnabledComponentsAlias(t *testing.T) {
	doc := `
default_script_dir: d
enabled_components:
  - path: legacy.yml
`
	cfg, err := ParseWorkspace([]byte(doc))
	require.NoError(t, err)
	require.Len(t, cfg.Components, 1)
	assert.Equal(t, "legacy.yml", cfg.Components[0].Path)
}

func TestParseWorkspace_ComponentsWinsOverAlias(t *testing.T) {
	doc := `
default_script_dir: d
components:
  - path: new.yml
enabled_components:
  - path: old.yml
`
	cfg, err := ParseWorkspace([]byte(doc))
	require.NoError(t, err)
	require.Len(t, cfg.Components, 1)
	assert.Equal(t, "new.yml", cfg.Components[0].Path)
}

func TestParseWorkspace_EmptyComponentList(t *testing.T) {
	cfg, err := ParseWorkspace([]byte("default_script_dir: d\ncomponents: []\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Components)
}

func TestParseWorkspace_NoVersion(t *testing.T) {
	cfg, err := ParseWorkspace([]byte("default_script_dir: d\ncomponents: []\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.RemoteToolVersion)
}

func TestParseWorkspace_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		key     string
		wantErr error
	}{
		{"empty", "   \n", "", ErrEmptyDocument},
		{"invalid yaml", "components: [[[", "", ErrInvalidYAML},
		{"missing default dir", "components: []\n", "default_script_dir", ErrMissingKey},
		{"missing components", "default_script_dir: d\n", "components", ErrMissingKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseWorkspace([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.key, cfgErr.Key)
		})
	}
}

// =============================================================================
// Validate Tests
// =============================================================================

func TestValidate_MissingComponentPath(t *testing.T) {
	cfg := &WorkspaceConfig{
		DefaultScriptDir: "d",
		Components:       []Component{{Path: "a.yml"}, {BaseDir: "x"}},
	}

	err := Validate(cfg)
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "components[1].path", cfgErr.Key)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestValidate_BlankDefaultDir(t *testing.T) {
	err := Validate(&WorkspaceConfig{DefaultScriptDir: "  "})
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestValidate_OK(t *testing.T) {
	err := Validate(&WorkspaceConfig{DefaultScriptDir: "d", Components: []Component{{Path: "a.yml"}}})
	assert.NoError(t, err)
}

// =============================================================================
// LoadWorkspace Tests
// =============================================================================

func TestLoadWorkspace_ExpandsBeforeValidating(t *testing.T) {
	doc := `
default_script_dir: ${SCRIPTS}
components:
  - path: ${PLAYBOOK:-site.yml}
`
	cfg, err := LoadWorkspace([]byte(doc), MapLookup(map[string]string{"SCRIPTS": "/srv/scripts"}))
	require.NoError(t, err)

	assert.Equal(t, "/srv/scripts", cfg.DefaultScriptDir)
	assert.Equal(t, "site.yml", cfg.Components[0].Path)
}

func TestLoadWorkspace_ExpandedToEmptyFailsValidation(t *testing.T) {
	doc := `
default_script_dir: d
components:
  - path: ${PLAYBOOK:-}
`
	_, err := LoadWorkspace([]byte(doc), MapLookup(nil))
	assert.ErrorIs(t, err, ErrMissingKey)
}
