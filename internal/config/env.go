package config

import (
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "GRAFT_"

// sections are the top-level keys env overrides may target. Other GRAFT_
// variables are left alone.
var sections = []string{"git", "source", "check", "strategy", "state", "log_level"}

func envMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			env[k] = v
		}
	}
	return env
}

// applyEnv sets GRAFT_<SECTION>__<KEY>=value overrides. Keys are lower
// cased; "__" separates levels, so GRAFT_CHECK__TIMEOUT=10m sets
// check.timeout and GRAFT_CHECK__COMMANDS__TEST="go test ./..." adds a
// command. Values are parsed as YAML scalars, so "3" becomes an integer.
func applyEnv(data map[string]any, env map[string]string) error {
	keys := make([]string, 0, len(env))
	for k := range env {
		if strings.HasPrefix(k, EnvPrefix) {
			keys = append(keys, k)
		}
	}
	// Sorted so nested overrides apply in a stable order.
	slices.Sort(keys)

	for _, k := range keys {
		path := strings.Split(strings.ToLower(strings.TrimPrefix(k, EnvPrefix)), "__")
		if !slices.Contains(sections, path[0]) {
			continue
		}
		if slices.Contains(path, "") {
			return fieldError(k, "empty key segment in environment override")
		}
		var value any
		if err := yaml.Unmarshal([]byte(env[k]), &value); err != nil || isCollection(value) {
			value = env[k]
		}
		if value == nil {
			value = ""
		}
		if err := setPath(data, path, value); err != nil {
			return fieldError(k, "%v", err)
		}
	}
	return nil
}

func isCollection(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

func setPath(data map[string]any, path []string, value any) error {
	m := data
	for _, seg := range path[:len(path)-1] {
		next, ok := m[seg]
		if !ok {
			child := map[string]any{}
			m[seg] = child
			m = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return &Error{Message: "cannot set a key below scalar " + seg}
		}
		m = child
	}
	m[path[len(path)-1]] = value
	return nil
}
