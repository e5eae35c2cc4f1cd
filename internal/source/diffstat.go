package source

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/roach88/graft/internal/model"
)

// DiffStat summarizes the files and lines a patch touches.
type DiffStat struct {
	Files   []string
	Added   int
	Deleted int
}

// ParseDiffStat reads the diff part of a patch. Mail headers before the
// first "diff --git" line and the trailing format-patch signature are
// ignored.
func ParseDiffStat(patch string) (DiffStat, error) {
	body := diffSection(patch)
	if body == "" {
		return DiffStat{}, nil
	}
	fds, err := diff.ParseMultiFileDiff([]byte(body))
	if err != nil {
		return DiffStat{}, fmt.Errorf("parse diff: %w", err)
	}

	var st DiffStat
	for _, fd := range fds {
		if name := fileName(fd); name != "" && !slices.Contains(st.Files, name) {
			st.Files = append(st.Files, name)
		}
		s := fd.Stat()
		st.Added += int(s.Added + s.Changed)
		st.Deleted += int(s.Deleted + s.Changed)
	}
	return st, nil
}

// diffSection cuts everything before the first file header and the
// "-- " signature format-patch appends.
func diffSection(patch string) string {
	start := -1
	if strings.HasPrefix(patch, "diff --git ") {
		start = 0
	} else if i := strings.Index(patch, "\ndiff --git "); i >= 0 {
		start = i + 1
	} else if strings.HasPrefix(patch, "--- ") {
		start = 0
	} else if i := strings.Index(patch, "\n--- "); i >= 0 {
		start = i + 1
	}
	if start < 0 {
		return ""
	}
	body := patch[start:]
	if i := strings.LastIndex(body, "\n-- \n"); i >= 0 {
		body = body[:i+1]
	}
	return body
}

func fileName(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == "/dev/null" {
		name = fd.OrigName
	}
	if name == "/dev/null" {
		return ""
	}
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	return name
}

// apply writes the stat into unit metadata.
func (st DiffStat) apply(meta model.Object) {
	meta[model.MetaChangedFiles] = model.Strings(st.Files...)
	meta[model.MetaLinesAdded] = model.Int(st.Added)
	meta[model.MetaLinesDeleted] = model.Int(st.Deleted)
}
