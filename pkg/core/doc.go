// Package core defines the shared language of the mergepivot system.
//
// This package contains:
//   - The in-memory table model (Dataset, Column, Row, Value)
//   - Rule and request types read from configuration (DeduplicationRule, PivotSpec)
//   - The error taxonomy surfaced by the merge, pivot and preset packages
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
