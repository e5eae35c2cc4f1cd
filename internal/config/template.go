package config

import (
	"fmt"
	"regexp"
	"strings"
)

// templatePattern matches {config.a.b} and {env.NAME}. Other brace
// expressions, such as runtime placeholders in check commands, are kept.
var templatePattern = regexp.MustCompile(`\{(config|env)\.([A-Za-z0-9_.]+)\}`)

const maxTemplateDepth = 8

// substituteTemplates replaces templates in every string of data.
// {config.x.y} refers to another key of the resolved configuration and
// may itself contain templates. A reference to a missing key or unset
// variable is an error.
func substituteTemplates(data map[string]any, env map[string]string) error {
	return walkStrings(data, "", func(field, s string) (string, error) {
		return expand(data, env, field, s, 0)
	})
}

func expand(data map[string]any, env map[string]string, field, s string, depth int) (string, error) {
	if depth > maxTemplateDepth {
		return "", fieldError(field, "templates nest deeper than %d levels (cycle?)", maxTemplateDepth)
	}
	var firstErr error
	out := templatePattern.ReplaceAllStringFunc(s, func(m string) string {
		if firstErr != nil {
			return m
		}
		sub := templatePattern.FindStringSubmatch(m)
		kind, key := sub[1], sub[2]
		switch kind {
		case "env":
			v, ok := env[key]
			if !ok {
				firstErr = fieldError(field, "template %s: environment variable %s is not set", m, key)
				return m
			}
			return v
		default:
			v, err := lookup(data, key)
			if err != nil {
				firstErr = fieldError(field, "template %s: %v", m, err)
				return m
			}
			expanded, err := expand(data, env, key, v, depth+1)
			if err != nil {
				firstErr = err
				return m
			}
			return expanded
		}
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// lookup returns the scalar at a dotted path.
func lookup(data map[string]any, key string) (string, error) {
	var cur any = data
	for _, seg := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%s is not a section", key)
		}
		cur, ok = m[seg]
		if !ok {
			return "", fmt.Errorf("no key %s", key)
		}
	}
	switch v := cur.(type) {
	case map[string]any, []any:
		return "", fmt.Errorf("%s is not a scalar", key)
	case nil:
		return "", nil
	default:
		return fmt.Sprint(v), nil
	}
}

// walkStrings rewrites every string value in place.
func walkStrings(v any, field string, fn func(field, s string) (string, error)) error {
	switch val := v.(type) {
	case map[string]any:
		for k, e := range val {
			path := join(field, k)
			if s, ok := e.(string); ok {
				out, err := fn(path, s)
				if err != nil {
					return err
				}
				val[k] = out
				continue
			}
			if err := walkStrings(e, path, fn); err != nil {
				return err
			}
		}
	case []any:
		for i, e := range val {
			path := fmt.Sprintf("%s[%d]", field, i)
			if s, ok := e.(string); ok {
				out, err := fn(path, s)
				if err != nil {
					return err
				}
				val[i] = out
				continue
			}
			if err := walkStrings(e, path, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
