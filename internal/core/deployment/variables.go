package deployment

import (
	"regexp"
	"strings"
)

// =============================================================================
// Variable Expansion Functions
// =============================================================================

// varPlaceholderRegex matches ${VAR} and ${VAR:-default} patterns.
// Groups:
//   - Group 1: Variable name (required)
//   - Group 2: Default value (optional, after :-)
var varPlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandVariables replaces ${VAR} and ${VAR:-default} placeholders with
// values returned by lookup.
//
// Behavior:
//   - ${VAR} - replaced with the looked-up value if set, otherwise kept as-is
//   - ${VAR:-default} - replaced with the looked-up value if set, otherwise "default"
//   - Unmatched text is left unchanged
//
// Examples:
//
//	ExpandVariables("${HOME}/playbooks", lookup)   // "/home/ops/playbooks"
//	ExpandVariables("${ROLES:-./roles}", lookup)   // "./roles" when ROLES is unset
//	ExpandVariables("${MISSING}", lookup)          // "${MISSING}"
func ExpandVariables(value string, lookup func(string) (string, bool)) string {
	if lookup == nil {
		return value
	}

	return varPlaceholderRegex.ReplaceAllStringFunc(value, func(match string) string {
		submatch := varPlaceholderRegex.FindStringSubmatch(match)
		if val, ok := lookup(submatch[1]); ok {
			return val
		}
		if strings.Contains(match, ":-") {
			return submatch[2]
		}
		return match
	})
}

// MapLookup adapts a map to the lookup signature used by ExpandVariables.
func MapLookup(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

// ExpandWorkspace returns a copy of cfg with placeholders expanded in every
// directory, path and version value.
func ExpandWorkspace(cfg *WorkspaceConfig, lookup func(string) (string, bool)) *WorkspaceConfig {
	out := &WorkspaceConfig{
		DefaultScriptDir:  ExpandVariables(cfg.DefaultScriptDir, lookup),
		RemoteToolVersion: ExpandVariables(cfg.RemoteToolVersion, lookup),
		Components:        make([]Component, len(cfg.Components)),
	}
	for i, c := range cfg.Components {
		out.Components[i] = Component{
			Path:    ExpandVariables(c.Path, lookup),
			BaseDir: ExpandVariables(c.BaseDir, lookup),
		}
	}
	return out
}
