package deployment

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// workspaceDocument mirrors the on-disk YAML layout. Pointer fields let the
// parser tell an absent key from an empty one.
type workspaceDocument struct {
	DefaultScriptDir     *string              `yaml:"default_script_dir"`
	Components           *[]componentDocument `yaml:"components"`
	EnabledComponents    *[]componentDocument `yaml:"enabled_components"`
	RemoteAnsibleVersion string               `yaml:"remote_ansible_version"`
}

type componentDocument struct {
	Path    string `yaml:"path"`
	BaseDir string `yaml:"base_dir"`
}

// =============================================================================
// Parser Functions
// =============================================================================

// ParseWorkspace parses the workspace YAML document.
// This is a pure function; it checks structure but not values (see Validate).
//
// "enabled_components" is accepted as an alias for "components"; when both
// are present "components" wins.
func ParseWorkspace(data []byte) (*WorkspaceConfig, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, NewConfigurationError("", "workspace document is empty", ErrEmptyDocument)
	}

	var doc workspaceDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewConfigurationError("", err.Error(), ErrInvalidYAML)
	}

	if doc.DefaultScriptDir == nil {
		return nil, NewConfigurationError("default_script_dir", "key is required", ErrMissingKey)
	}

	components := doc.Components
	if components == nil {
		components = doc.EnabledComponents
	}
	if components == nil {
		return nil, NewConfigurationError("components", "key is required", ErrMissingKey)
	}

	cfg := &WorkspaceConfig{
		DefaultScriptDir:  *doc.DefaultScriptDir,
		Components:        make([]Component, 0, len(*components)),
		RemoteToolVersion: doc.RemoteAnsibleVersion,
	}
	for _, c := range *components {
		cfg.Components = append(cfg.Components, Component{Path: c.Path, BaseDir: c.BaseDir})
	}

	return cfg, nil
}

// Validate checks the values of a parsed workspace.
func Validate(cfg *WorkspaceConfig) error {
	if strings.TrimSpace(cfg.DefaultScriptDir) == "" {
		return NewConfigurationError("default_script_dir", "must not be empty", ErrMissingKey)
	}
	for i, c := range cfg.Components {
		if strings.TrimSpace(c.Path) == "" {
			return NewConfigurationError(fmt.Sprintf("components[%d].path", i), "key is required", ErrMissingKey)
		}
	}
	return nil
}

// LoadWorkspace parses the document, expands ${VAR} placeholders using
// lookup, and validates the result.
//
// Example:
//
//	cfg, err := LoadWorkspace(data, os.LookupEnv)
func LoadWorkspace(data []byte, lookup func(string) (string, bool)) (*WorkspaceConfig, error) {
	cfg, err := ParseWorkspace(data)
	if err != nil {
		return nil, err
	}
	cfg = ExpandWorkspace(cfg, lookup)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
