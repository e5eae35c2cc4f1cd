package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
)

// PatchExtensions are the file suffixes DirSource picks up.
var PatchExtensions = []string{".patch", ".diff"}

// DirSource yields one unit per patch file in Dir, in lexical file name
// order. Unit ids are content hashes, so renaming a file keeps its id.
type DirSource struct {
	Dir    string
	logger *slog.Logger
}

var _ engine.ChangeSource = (*DirSource)(nil)

// NewDirSource reads patches from dir.
func NewDirSource(dir string, logger *slog.Logger) *DirSource {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DirSource{Dir: dir, logger: logger}
}

// Units reads every patch file. Two files with identical content are an
// error because their ids would collide.
func (s *DirSource) Units(ctx context.Context) ([]model.Unit, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("read patch dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(PatchExtensions, filepath.Ext(e.Name())) {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)

	units := make([]model.Unit, 0, len(names))
	seen := map[string]string{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, name))
		if err != nil {
			return nil, fmt.Errorf("read patch: %w", err)
		}
		u, err := s.unit(name, string(data))
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[u.ID]; dup {
			return nil, fmt.Errorf("patches %s and %s have identical content", prev, name)
		}
		seen[u.ID] = name
		units = append(units, u)
	}
	s.logger.Info("collected patches", "dir", s.Dir, "units", len(units))
	return units, nil
}

func (s *DirSource) unit(name, content string) (model.Unit, error) {
	id, err := model.UnitID(content)
	if err != nil {
		return model.Unit{}, fmt.Errorf("patch %s: %w", name, err)
	}
	meta := model.Object{model.MetaSourceFile: model.String(name)}
	mailHeaders(content, meta)
	if _, ok := meta[model.MetaSubject]; !ok {
		meta[model.MetaSubject] = model.String(strings.TrimSuffix(name, filepath.Ext(name)))
	}
	if st, err := ParseDiffStat(content); err == nil {
		st.apply(meta)
	} else {
		s.logger.Debug("no diffstat", "patch", name, "error", err)
	}
	return model.Unit{ID: id, Content: content, Metadata: meta}, nil
}
