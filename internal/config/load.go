package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Loader reads configuration files.
type Loader struct {
	// Includes are loaded after the main file, in order. Later files win.
	Includes []string

	// Environ returns the environment for overrides and {env.*}
	// templates. Defaults to os.Environ.
	Environ func() []string
}

// Load reads path with the default loader.
func Load(path string, includes ...string) (*Config, error) {
	l := Loader{Includes: includes}
	return l.Load(path)
}

// Load reads, merges and validates a configuration.
//
// Order of precedence, lowest first: the schema defaults, files named by
// include: directives, the file itself, CLI includes, GRAFT_* environment
// variables.
func (l *Loader) Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fileError(path, err, "resolve path")
	}
	merged, err := loadFile(abs, nil)
	if err != nil {
		return nil, err
	}
	for _, inc := range l.Includes {
		incAbs, err := filepath.Abs(inc)
		if err != nil {
			return nil, fileError(inc, err, "resolve path")
		}
		data, err := loadFile(incAbs, nil)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, data)
	}

	environ := os.Environ
	if l.Environ != nil {
		environ = l.Environ
	}
	env := envMap(environ())
	if err := applyEnv(merged, env); err != nil {
		return nil, err
	}

	resolved, err := unifySchema(merged)
	if err != nil {
		return nil, err
	}
	absolutize(resolved, filepath.Dir(abs))
	if err := substituteTemplates(resolved, env); err != nil {
		return nil, err
	}

	cfg, err := decodeStrict(resolved)
	if err != nil {
		return nil, fileError(abs, err, "decode")
	}
	cfg.resolvePaths(filepath.Dir(abs))
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile reads one file and, recursively, its include: directive.
// Included files are merged first so the including file wins.
func loadFile(path string, visited []string) (map[string]any, error) {
	for _, v := range visited {
		if v == path {
			return nil, fileError(path, nil, "circular include (via %s)", strings.Join(visited, " -> "))
		}
	}
	visited = append(visited, path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fileError(path, err, "read config")
	}
	data, err := parseFile(path, raw)
	if err != nil {
		return nil, err
	}

	includes, err := takeIncludes(path, data)
	if err != nil {
		return nil, err
	}
	merged := map[string]any{}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		incData, err := loadFile(filepath.Clean(inc), visited)
		if err != nil {
			return nil, err
		}
		merged = deepMerge(merged, incData)
	}
	return deepMerge(merged, data), nil
}

// parseFile decodes YAML, or CUE for a .cue extension, into a generic map.
func parseFile(path string, raw []byte) (map[string]any, error) {
	if filepath.Ext(path) == ".cue" {
		ctx := cuecontext.New()
		v := ctx.CompileBytes(raw, cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, fileError(path, err, "compile CUE")
		}
		if err := v.Validate(cue.Concrete(true)); err != nil {
			return nil, fileError(path, err, "CUE values must be concrete")
		}
		js, err := v.MarshalJSON()
		if err != nil {
			return nil, fileError(path, err, "export CUE")
		}
		raw = js
	}

	data := map[string]any{}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return nil, fileError(path, err, "parse YAML")
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// takeIncludes removes and returns the include: key, a string or a list.
func takeIncludes(path string, data map[string]any) ([]string, error) {
	raw, ok := data["include"]
	if !ok {
		return nil, nil
	}
	delete(data, "include")
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fileError(path, nil, "include entries must be strings, got %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fileError(path, nil, "include must be a string or a list, got %T", raw)
	}
}

// deepMerge merges src into dst. Maps merge key by key; any other value in
// src replaces the one in dst.
func deepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for k, sv := range src {
		if sm, ok := sv.(map[string]any); ok {
			if dm, ok := dst[k].(map[string]any); ok {
				dst[k] = deepMerge(dm, sm)
				continue
			}
			dst[k] = deepMerge(map[string]any{}, sm)
			continue
		}
		dst[k] = sv
	}
	return dst
}

// unifySchema checks the merged data against #Config and fills defaults.
func unifySchema(data map[string]any) (map[string]any, error) {
	js, err := json.Marshal(data)
	if err != nil {
		return nil, &Error{Message: "encode merged config", Err: err}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, &Error{Message: "compile schema", Err: err}
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.CompileBytes(js, cue.Filename("config.json"))
	if err := v.Err(); err != nil {
		return nil, &Error{Message: "load merged config", Err: err}
	}
	u := def.Unify(v)
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return nil, &Error{Message: "schema validation failed", Err: err}
	}

	out, err := u.MarshalJSON()
	if err != nil {
		return nil, &Error{Message: "export config", Err: err}
	}
	resolved := map[string]any{}
	if err := yaml.Unmarshal(out, &resolved); err != nil {
		return nil, &Error{Message: "decode config", Err: err}
	}
	return resolved, nil
}

// decodeStrict turns the resolved map into a Config, rejecting unknown
// fields.
func decodeStrict(data map[string]any) (*Config, error) {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// pathKeys are the keys holding filesystem paths.
var pathKeys = [][2]string{
	{"git", "target_workdir"},
	{"source", "patch_dir"},
	{"check", "output_dir"},
	{"state", "dir"},
	{"state", "db"},
}

// absolutize makes template-free relative paths absolute before templates
// are expanded, so {config.git.target_workdir} yields an absolute path.
func absolutize(data map[string]any, base string) {
	for _, k := range pathKeys {
		section, ok := data[k[0]].(map[string]any)
		if !ok {
			continue
		}
		p, ok := section[k[1]].(string)
		if !ok || p == "" || strings.Contains(p, "{") || filepath.IsAbs(p) {
			continue
		}
		section[k[1]] = filepath.Join(base, p)
	}
}

// resolvePaths makes relative paths absolute against the config file's
// directory.
func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{
		&c.Git.TargetWorkdir,
		&c.Source.PatchDir,
		&c.Check.OutputDir,
		&c.State.Dir,
		&c.State.DB,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}
}

// String renders the configuration as YAML.
func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}
