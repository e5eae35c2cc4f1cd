package cli

import (
	"strings"

	"github.com/fatih/color"

	"github.com/roach88/graft/internal/engine"
	"github.com/roach88/graft/internal/model"
)

// statusColor picks the headline color of a run.
func statusColor(done, aborted bool) color.Attribute {
	switch {
	case aborted:
		return color.FgRed
	case done:
		return color.FgGreen
	default:
		return color.FgYellow
	}
}

func outcomeColor(o model.Outcome) color.Attribute {
	switch o {
	case model.OutcomePassed:
		return color.FgGreen
	case model.OutcomeApplyFailed:
		return color.FgMagenta
	default:
		return color.FgRed
	}
}

func renderSummary(f *OutputFormatter, s engine.Summary) {
	f.Printf("%s\n", f.paint(statusColor(s.Done, s.Aborted), s.String()))
	f.Printf("  Run:         %s\n", s.RunID)
	f.Printf("  Strategy:    %s\n", s.Strategy)
	f.Printf("  Frontier:    %d/%d\n", s.Frontier, s.Units)
	if len(s.Excluded) > 0 {
		f.Printf("  Excluded:    %s\n", f.paint(color.FgRed, shortIDs(s.Excluded)))
	}
	if len(s.Held) > 0 {
		f.Printf("  Held:        %s\n", f.paint(color.FgYellow, shortIDs(s.Held)))
	}
}

func renderAttempt(f *OutputFormatter, a model.AttemptRecord, verbose bool) {
	outcome := string(a.Outcome)
	if a.TimedOut {
		outcome += " (timed out)"
	}
	f.Printf("  [%d] %-14s %-11s %s %s\n",
		a.Seq, a.Origin, a.Strategy, f.paint(outcomeColor(a.Outcome), outcome), shortIDs(a.UnitIDs))
	if a.FailedUnitID != "" {
		f.Printf("       Failed unit: %s\n", model.ShortID(a.FailedUnitID))
	}
	if !verbose {
		return
	}
	f.Printf("       Apply: %s  Validate: %s\n", a.DurationApply, a.DurationValidate)
	if out := lastLine(a.ValidateOutput); out != "" {
		f.Printf("       Output: %s\n", out)
	}
	if a.ErrorMessage != "" {
		f.Printf("       Error: %s\n", a.ErrorMessage)
	}
}

// shortIDs abbreviates and joins unit ids.
func shortIDs(ids []string) string {
	short := make([]string, len(ids))
	for i, id := range ids {
		short[i] = model.ShortID(id)
	}
	return strings.Join(short, " ")
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
