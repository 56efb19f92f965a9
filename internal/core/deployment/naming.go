package deployment

import (
	"path"
	"path/filepath"
)

// =============================================================================
// Path Naming Functions
// =============================================================================

// StagedFolderName returns the directory name a script folder receives
// inside the environment: its base name.
//
// Example:
//
//	StagedFolderName("/home/ops/roles/") // returns "roles"
func StagedFolderName(scriptFolder string) string {
	return filepath.Base(filepath.Clean(scriptFolder))
}

// StagedScriptPath returns the in-container path of a component's script.
// Pattern: {pluginRoot}/{base(scriptFolder)}/{scriptPath}
//
// Example:
//
//	StagedScriptPath("/rsc/plugins", "/home/ops/roles", "site.yml") // returns "/rsc/plugins/roles/site.yml"
func StagedScriptPath(pluginRoot, scriptFolder, scriptPath string) string {
	return path.Join(pluginRoot, StagedFolderName(scriptFolder), scriptPath)
}

// InventoryHost returns the single-host inventory string for a container.
// The trailing comma makes the tool read it as a host list, not a file.
//
// Example:
//
//	InventoryHost("ws") // returns "ws,"
func InventoryHost(containerName string) string {
	return containerName + ","
}
