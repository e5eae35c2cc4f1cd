package model

import "time"

// Outcome is the result of one apply/validate cycle.
type Outcome string

const (
	OutcomePassed      Outcome = "applied_and_passed"
	OutcomeFailed      Outcome = "applied_and_failed"
	OutcomeApplyFailed Outcome = "failed_to_apply"
)

// ValidOutcomes lists the allowed outcomes.
var ValidOutcomes = map[Outcome]bool{
	OutcomePassed:      true,
	OutcomeFailed:      true,
	OutcomeApplyFailed: true,
}

// Origin records why a candidate set was chosen.
type Origin string

const (
	OriginBatch         Origin = "batch"
	OriginBisect        Origin = "bisect"
	OriginRetryAll      Origin = "retry-all"
	OriginRetrySpecific Origin = "retry-specific"
)

// AttemptRecord is one entry of the append-only attempt history.
// Records are never modified after they are appended.
type AttemptRecord struct {
	Seq      int64    `json:"seq"`
	UnitIDs  []string `json:"unit_ids"`
	Outcome  Outcome  `json:"outcome"`
	Origin   Origin   `json:"origin"`
	Strategy string   `json:"strategy"`

	// FailedUnitID is set only for OutcomeApplyFailed. Apply runs unit by
	// unit, so at most one unit fails per attempt.
	FailedUnitID string `json:"failed_unit_id,omitempty"`

	// TimedOut marks a validation that was killed at its deadline.
	TimedOut bool `json:"timed_out,omitempty"`

	DurationApply    time.Duration `json:"duration_apply"`
	DurationValidate time.Duration `json:"duration_validate"`

	// Diagnostics. Never parsed by the engine loop.
	ApplyOutput    string `json:"apply_output,omitempty"`
	ValidateOutput string `json:"validate_output,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Passed reports whether the attempt applied and validated.
func (a AttemptRecord) Passed() bool {
	return a.Outcome == OutcomePassed
}

// Size is the number of units in the attempt.
func (a AttemptRecord) Size() int {
	return len(a.UnitIDs)
}

// SameUnits reports whether two attempts covered exactly the same ordered ids.
func (a AttemptRecord) SameUnits(b AttemptRecord) bool {
	if len(a.UnitIDs) != len(b.UnitIDs) {
		return false
	}
	for i := range a.UnitIDs {
		if a.UnitIDs[i] != b.UnitIDs[i] {
			return false
		}
	}
	return true
}
