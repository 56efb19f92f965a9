package deployment

// Method selects how the automation tool reaches the environment.
type Method string

const (
	// MethodRemote runs the tool on the host against the container's
	// docker connection plugin.
	MethodRemote Method = "remote-invocation"

	// MethodLocal stages the component into the container and runs the
	// tool there against a local connection.
	MethodLocal Method = "local-invocation"
)

// methodSelectors maps every accepted selector value to its method.
// "ansible" and "docker" are the selector names of the earlier CLI.
var methodSelectors = map[string]Method{
	string(MethodRemote): MethodRemote,
	string(MethodLocal):  MethodLocal,
	"ansible":            MethodRemote,
	"docker":             MethodLocal,
}

// Methods returns the canonical method values.
func Methods() []Method {
	return []Method{MethodRemote, MethodLocal}
}

// ParseMethod returns the method for selector, compared by value.
func ParseMethod(selector string) (Method, error) {
	if m, ok := methodSelectors[selector]; ok {
		return m, nil
	}
	return "", &UnknownMethodError{Method: selector}
}
