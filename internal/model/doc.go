// Package model holds the data types shared by every graft package:
// change units, attempt records and the constrained value types used for
// open-ended metadata.
//
// This package imports nothing internal. Everything else builds on it.
//
// Key design constraints:
//   - Units and AttemptRecords are immutable once created
//   - Open maps (Unit.Metadata, strategy scratch data) use the sealed Value
//     variants; fields the engine inspects are always typed struct fields
//   - No floats in Value (canonical JSON must be deterministic)
//   - All JSON tags use snake_case
package model
