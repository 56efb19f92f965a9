package deployment

// =============================================================================
// Invocation Building
// =============================================================================

// ResolveScriptFolder returns the component's base_dir, or the workspace
// default_script_dir when the component has none.
func ResolveScriptFolder(cfg *WorkspaceConfig, c Component) string {
	if c.BaseDir != "" {
		return c.BaseDir
	}
	return cfg.DefaultScriptDir
}

// BuildParameters returns the extra key-value context for one component.
// The tool version is added only when the workspace configures it.
func BuildParameters(cfg *WorkspaceConfig) map[string]any {
	params := map[string]any{}
	if cfg.RemoteToolVersion != "" {
		params[ParamRemoteToolVersion] = cfg.RemoteToolVersion
	}
	return params
}

// BuildInvocation resolves a component into the descriptor handed to an
// execution strategy. arguments is passed through to the tool unchanged.
//
// Example:
//
//	inv := BuildInvocation(cfg, Component{Path: "site.yml"}, DefaultArguments)
//	// inv.ScriptFolder == cfg.DefaultScriptDir
func BuildInvocation(cfg *WorkspaceConfig, c Component, arguments string) Invocation {
	return Invocation{
		ScriptType:   ScriptTypeAnsiblePlaybook,
		ScriptFolder: ResolveScriptFolder(cfg, c),
		Path:         c.Path,
		Parameters:   BuildParameters(cfg),
		Arguments:    arguments,
	}
}
