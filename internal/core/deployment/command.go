package deployment

import (
	"encoding/json"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// =============================================================================
// Command Line Construction
// =============================================================================

// DefaultTool is the automation tool binary.
const DefaultTool = "ansible-playbook"

// RemoteCommandParams contains all inputs for the host-side command line.
type RemoteCommandParams struct {
	Tool          string // Defaults to DefaultTool
	User          string // Remote user; defaults to "root"
	ContainerName string // Addressed as a single-host inventory
	Playbook      string // External entry-point playbook
	Verbosity     int    // Number of -v flags
	Invocation    Invocation
}

// LocalCommandParams contains all inputs for the in-container command line.
type LocalCommandParams struct {
	Tool       string // Defaults to DefaultTool
	PluginRoot string // Directory components are staged under
	Invocation Invocation
}

// RemoteCommand builds the command line that runs the tool on the host and
// reaches the container through the docker connection plugin. The
// invocation travels as one shell-quoted JSON extra-vars argument.
//
// Example:
//
//	ansible-playbook -b -u root -c docker -i 'ws,' --extra-vars '{"remote_plugin":{...}}' /opt/external.yml
func RemoteCommand(p RemoteCommandParams) (string, error) {
	payload, err := json.Marshal(map[string]Invocation{RemotePluginKey: p.Invocation})
	if err != nil {
		return "", fmt.Errorf("encode extra vars: %w", err)
	}

	user := p.User
	if user == "" {
		user = "root"
	}

	words := []string{toolOrDefault(p.Tool), "-b", "-u", user, "-c", "docker", "-i", InventoryHost(p.ContainerName)}
	if p.Verbosity > 0 {
		words = append(words, "-"+strings.Repeat("v", p.Verbosity))
	}
	words = append(words, "--extra-vars", string(payload), p.Playbook)

	return JoinQuoted(words)
}

// LocalCommand builds the command line executed inside the container.
// Arguments are inserted unquoted so the shell splits pass-through flags.
//
// Example:
//
//	ansible-playbook --connection=local -b -i 127.0.0.1, --extra-vars '{}' /rsc/plugins/roles/site.yml
func LocalCommand(p LocalCommandParams) (string, error) {
	params := p.Invocation.Parameters
	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode parameters: %w", err)
	}

	head, err := JoinQuoted([]string{toolOrDefault(p.Tool), "--connection=local", "-b"})
	if err != nil {
		return "", err
	}
	tail, err := JoinQuoted([]string{
		"--extra-vars", string(payload),
		StagedScriptPath(p.PluginRoot, p.Invocation.ScriptFolder, p.Invocation.Path),
	})
	if err != nil {
		return "", err
	}

	if args := strings.TrimSpace(p.Invocation.Arguments); args != "" {
		return head + " " + args + " " + tail, nil
	}
	return head + " " + tail, nil
}

// JoinQuoted quotes each word for a POSIX shell and joins them with spaces.
func JoinQuoted(words []string) (string, error) {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		q, err := syntax.Quote(w, syntax.LangPOSIX)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrUnquotable, w, err)
		}
		quoted = append(quoted, q)
	}
	return strings.Join(quoted, " "), nil
}

func toolOrDefault(tool string) string {
	if tool == "" {
		return DefaultTool
	}
	return tool
}
