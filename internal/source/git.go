package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
	"github.com/roach88/graft/internal/target"
)

// Content selects what a GitSource puts in Unit.Content.
type Content string

const (
	// ContentMbox is format-patch output, for git am.
	ContentMbox Content = "mbox"

	// ContentDiff is a plain diff, for git apply.
	ContentDiff Content = "diff"

	// ContentNone leaves Content empty; the target cherry-picks by id.
	ContentNone Content = "none"
)

// ContentFor returns the content a target mode consumes.
func ContentFor(mode target.Mode) Content {
	switch mode {
	case target.ModeAm:
		return ContentMbox
	case target.ModeApply:
		return ContentDiff
	default:
		return ContentNone
	}
}

// GitSource yields the non-merge commits in Base..Ref, oldest first.
// Unit ids are commit ids.
type GitSource struct {
	Ref     string
	Base    string
	Content Content

	runner *target.Runner
	logger *slog.Logger
}

var _ engine.ChangeSource = (*GitSource)(nil)

// NewGitSource reads commits from the repository at dir.
func NewGitSource(dir, ref, base string, content Content, logger *slog.Logger) *GitSource {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &GitSource{
		Ref:     ref,
		Base:    base,
		Content: content,
		runner:  target.NewRunner(dir, 5*time.Minute),
		logger:  logger,
	}
}

func (s *GitSource) git(ctx context.Context, args ...string) (string, error) {
	res, err := s.runner.Run(ctx, "", "git", args...)
	if err != nil {
		return "", err
	}
	if !res.OK() {
		return "", fmt.Errorf("git %s: exit %d: %s", args[0], res.ExitCode, strings.TrimSpace(res.Output))
	}
	return res.Output, nil
}

// Units lists and reads every commit.
func (s *GitSource) Units(ctx context.Context) ([]model.Unit, error) {
	out, err := s.git(ctx, "rev-list", "--reverse", "--topo-order", "--no-merges", s.Base+".."+s.Ref)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	ids := strings.Fields(out)
	s.logger.Info("collected commits", "range", s.Base+".."+s.Ref, "units", len(ids))

	units := make([]model.Unit, 0, len(ids))
	for _, id := range ids {
		u, err := s.unit(ctx, id)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

// headerFormat separates fields with NUL so subjects may hold anything.
const headerFormat = "--format=%an%x00%ae%x00%at%x00%s"

func (s *GitSource) unit(ctx context.Context, id string) (model.Unit, error) {
	header, err := s.git(ctx, "show", "-s", headerFormat, id)
	if err != nil {
		return model.Unit{}, fmt.Errorf("read commit %s: %w", model.ShortID(id), err)
	}
	meta := model.Object{}
	fields := strings.SplitN(strings.TrimRight(header, "\n"), "\x00", 4)
	if len(fields) == 4 {
		meta[model.MetaAuthor] = model.String(fields[0])
		meta[model.MetaEmail] = model.String(fields[1])
		if ts, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
			meta[model.MetaTimestamp] = model.Int(ts)
		}
		meta[model.MetaSubject] = model.String(fields[3])
	}

	patch, err := s.git(ctx, "show", "--format=", "--no-color", "--no-ext-diff", id)
	if err != nil {
		return model.Unit{}, fmt.Errorf("read commit %s: %w", model.ShortID(id), err)
	}
	if st, err := ParseDiffStat(patch); err == nil {
		st.apply(meta)
	} else {
		s.logger.Debug("no diffstat", "unit", model.ShortID(id), "error", err)
	}

	u := model.Unit{ID: id, Metadata: meta}
	switch s.Content {
	case ContentDiff:
		u.Content = patch
	case ContentMbox:
		mbox, err := s.git(ctx, "format-patch", "-1", "--stdout", "--no-color", id)
		if err != nil {
			return model.Unit{}, fmt.Errorf("format commit %s: %w", model.ShortID(id), err)
		}
		u.Content = mbox
	}
	return u, nil
}
