// Package triage reads validation failures and tells the recovery planner
// whether a failure is systemic and which units the output points at.
package triage

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
	"github.com/roach88/graft/internal/source"
)

// DefaultPatterns match infrastructure failures that say nothing about the
// units under test.
var DefaultPatterns = []string{
	`(?i)no space left on device`,
	`(?i)disk quota exceeded`,
	`(?i)connection reset by peer`,
	`(?i)temporary failure in name resolution`,
	`(?i)out of memory|oom[- ]?kill(ed|er)?`,
}

// Classifier implements engine.Classifier.
type Classifier struct {
	patterns        []*regexp.Regexp
	timeoutSystemic bool
	logger          *slog.Logger
}

var _ engine.Classifier = (*Classifier)(nil)

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger. Classifications are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = l
	}
}

// WithTimeoutSystemic sets whether a timed-out validation is systemic.
// It is by default. When it is not, a timeout is read like any other
// failure, so a unit that hangs the check is bisected out.
func WithTimeoutSystemic(systemic bool) Option {
	return func(c *Classifier) {
		c.timeoutSystemic = systemic
	}
}

// New compiles patterns. An empty list selects DefaultPatterns.
func New(patterns []string, opts ...Option) (*Classifier, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	c := &Classifier{timeoutSystemic: true, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("systemic pattern %q: %w", p, err)
		}
		c.patterns = append(c.patterns, re)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify inspects a failed validation of failed.
//
// A timed-out validation (unless disabled with WithTimeoutSystemic) or
// output matching a systemic pattern is systemic, and no suspects are
// reported. Otherwise a unit is a suspect when one of
// the files it changes is named in the output.
func (c *Classifier) Classify(failed []model.Unit, attempt model.AttemptRecord) engine.Classification {
	if attempt.TimedOut && c.timeoutSystemic {
		c.logger.Debug("systemic failure", "seq", attempt.Seq, "reason", "timeout")
		return engine.Classification{Systemic: true, Reason: "validation timed out"}
	}
	for _, re := range c.patterns {
		if m := re.FindString(attempt.ValidateOutput); m != "" {
			reason := fmt.Sprintf("output matches systemic pattern %q: %s", re.String(), m)
			c.logger.Debug("systemic failure", "seq", attempt.Seq, "pattern", re.String())
			return engine.Classification{Systemic: true, Reason: reason}
		}
	}

	var suspects []string
	for _, u := range failed {
		if mentions(attempt.ValidateOutput, changedFiles(u)) {
			suspects = append(suspects, u.ID)
		}
	}
	if len(suspects) > 0 {
		c.logger.Debug("suspects found", "seq", attempt.Seq, "suspects", len(suspects), "of", len(failed))
	}
	return engine.Classification{Suspects: suspects}
}

// changedFiles prefers recorded metadata and falls back to parsing the
// unit's patch.
func changedFiles(u model.Unit) []string {
	if files := u.ChangedFiles(); len(files) > 0 {
		return files
	}
	if u.Content == "" {
		return nil
	}
	st, err := source.ParseDiffStat(u.Content)
	if err != nil {
		return nil
	}
	return st.Files
}

func mentions(output string, files []string) bool {
	return slices.ContainsFunc(files, func(f string) bool {
		return f != "" && containsPath(output, f)
	})
}

// containsPath reports whether path occurs in s as a whole path: file1.go
// does not match inside file10.go or myfile1.go, but does match in
// ./pkg/file1.go:12.
func containsPath(s, path string) bool {
	for off := 0; ; {
		i := strings.Index(s[off:], path)
		if i < 0 {
			return false
		}
		start := off + i
		end := start + len(path)
		if (start == 0 || !isNameByte(s[start-1])) && (end == len(s) || !isNameByte(s[end])) {
			return true
		}
		off = start + 1
	}
}

func isNameByte(b byte) bool {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		return true
	}
	return b == '_' || b == '-' || b == '.'
}
