// Package deployment provides pure functions for planning a workspace deployment run.
//
// This package contains the functional core logic for turning a workspace
// document into the per-component invocations that an execution strategy
// runs against an ephemeral container. All functions are pure (no I/O, no
// side effects); the imperative shell (internal/shell/...) performs the
// Docker and subprocess calls.
//
// # Functions
//
//   - Workspace: Parse and validate the workspace document (ParseWorkspace, LoadWorkspace)
//   - Variables: Expand ${VAR} placeholders in workspace values (ExpandVariables)
//   - Invocation: Resolve a component into its descriptor (BuildInvocation)
//   - Method: Select the execution method by value (ParseMethod)
//   - Commands: Build shell command lines for the automation tool (RemoteCommand, LocalCommand)
//   - Run states: Validate orchestrator state transitions (CanTransition)
//   - History: Journal records for runs and their components (RunRecord, ComponentRecord)
//
// # Usage
//
//	cfg, err := deployment.LoadWorkspace(data, os.LookupEnv)
//	method, err := deployment.ParseMethod("local-invocation")
//	for _, c := range cfg.Components {
//	    inv := deployment.BuildInvocation(cfg, c, deployment.DefaultArguments)
//	    cmd, err := deployment.LocalCommand(deployment.LocalCommandParams{...})
//	}
package deployment
