package config

import "regexp"

// envRefPattern matches a whole value of the form $VAR or ${VAR}.
var envRefPattern = regexp.MustCompile(`^\$(?:\{([A-Za-z_][A-Za-z0-9_]*)\}|([A-Za-z_][A-Za-z0-9_]*))$`)

// ResolveEnv replaces a value that is entirely an environment reference with
// the variable's value. Unset variables resolve to "". Any other value is
// returned unchanged.
func ResolveEnv(value string, lookup func(string) (string, bool)) string {
	m := envRefPattern.FindStringSubmatch(value)
	if m == nil {
		return value
	}
	name := m[1]
	if name == "" {
		name = m[2]
	}
	v, _ := lookup(name)
	return v
}
