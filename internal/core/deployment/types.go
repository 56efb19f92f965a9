package deployment

// =============================================================================
// Workspace Types
// =============================================================================

// WorkspaceConfig is the materialized workspace document.
// It is loaded once before a run starts and never mutated afterwards.
type WorkspaceConfig struct {
	DefaultScriptDir string
	Components       []Component

	// RemoteToolVersion is the automation tool version requested inside the
	// environment. Empty means not configured.
	RemoteToolVersion string
}

// Component is one deployable unit (script or playbook).
type Component struct {
	Path    string // Script path relative to its directory
	BaseDir string // Optional; falls back to WorkspaceConfig.DefaultScriptDir
}

// =============================================================================
// Invocation Types
// =============================================================================

// ScriptType identifies the kind of script a component is.
type ScriptType string

const (
	ScriptTypeAnsiblePlaybook ScriptType = "Ansible PlayBook"
)

// Invocation is the descriptor handed to an execution strategy for one component.
// It is built at dispatch time and discarded after the strategy returns.
type Invocation struct {
	ScriptType   ScriptType     `json:"script_type"`
	ScriptFolder string         `json:"script_folder"`
	Path         string         `json:"path"`
	Parameters   map[string]any `json:"parameters"`
	Arguments    string         `json:"arguments"`
}

// =============================================================================
// Defaults
// =============================================================================

const (
	// ParamRemoteToolVersion is the parameter key carrying the tool version.
	ParamRemoteToolVersion = "remote_ansible_version"

	// DefaultArguments targets the environment itself as a one-host inventory.
	DefaultArguments = "-i 127.0.0.1,"

	// RemotePluginKey wraps the invocation in the remote tool's extra-vars.
	RemotePluginKey = "remote_plugin"
)
