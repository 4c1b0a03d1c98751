/*
validator.go - Input sanitization for extracted labor lines

PURPOSE:
  Sanitizes a raw batch of labor line items before any comparison runs.
  Extraction output is untrusted: OCR and table parsing produce negative
  numbers, blank names, and missing labor types. The validator corrects
  what it safely can, excludes what it cannot, and reports everything.

RULES:
  - Negative unit_rate / hours / total_cost: replaced with the absolute
    value, warning emitted. (Preserved upstream behavior; the warning is
    what keeps extraction bugs visible.)
  - Missing/blank name: hard error, line excluded from reconciliation.
  - Missing/blank labor type: defaulted with a warning.
  - unit_rate above MaxUnitRate or hours above MaxWeeklyHours: warning
    only, line still processed (outlier, not invalid).
  - Missing total_cost: derived as unit_rate * hours.

The batch is never aborted: the coordinator reconciles the corrected lines
regardless of Valid and surfaces the errors alongside the result.

SEE ALSO:
  - coordinator.go: Runs validation first, always proceeds with Lines
*/
package recon

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// ExcludedLine reports a line dropped from reconciliation and why. Index is
// the line's position in the submitted payload.
type ExcludedLine struct {
	Index  int
	Reason string
}

// ValidationResult is the outcome of sanitizing one batch. Lines holds the
// corrected, reconcilable line items; excluded lines are absent from it.
// Valid is false only when at least one hard error exists.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
	Lines    []LaborLineItem
	Excluded []ExcludedLine
}

// =============================================================================
// DATA VALIDATOR
// =============================================================================

// DataValidator sanitizes raw labor line batches.
type DataValidator struct {
	cfg Config
	log *zap.Logger
}

// NewDataValidator creates a validator. A nil logger disables logging.
func NewDataValidator(cfg Config, log *zap.Logger) *DataValidator {
	if log == nil {
		log = zap.NewNop()
	}
	return &DataValidator{cfg: cfg, log: log}
}

// Validate sanitizes the batch. The input slice is not modified; corrected
// copies are returned.
func (v *DataValidator) Validate(lines []LaborLineItem) ValidationResult {
	result := ValidationResult{Valid: true}

	for _, line := range lines {
		corrected := line

		if corrected.UnitRate.IsNegative() {
			corrected.UnitRate = corrected.UnitRate.Abs()
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("labor entry %d: corrected negative unit_rate to %s", corrected.Index, corrected.UnitRate))
		}
		if corrected.Hours.IsNegative() {
			corrected.Hours = corrected.Hours.Abs()
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("labor entry %d: corrected negative hours to %s", corrected.Index, corrected.Hours))
		}
		if corrected.TotalCost.IsNegative() {
			corrected.TotalCost = corrected.TotalCost.Abs()
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("labor entry %d: corrected negative total_cost to %s", corrected.Index, corrected.TotalCost))
		}

		if corrected.UnitRate.GreaterThan(v.cfg.MaxUnitRate) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("labor entry %d: unusually high unit_rate $%s", corrected.Index, corrected.UnitRate))
		}
		if corrected.Hours.GreaterThan(v.cfg.MaxWeeklyHours) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("labor entry %d: unusually high hours %s", corrected.Index, corrected.Hours))
		}

		if strings.TrimSpace(corrected.Name) == "" {
			reason := "missing or empty worker name"
			result.Errors = append(result.Errors,
				fmt.Sprintf("labor entry %d: %s", corrected.Index, reason))
			result.Excluded = append(result.Excluded, ExcludedLine{Index: corrected.Index, Reason: reason})
			v.log.Warn("excluding labor line", zap.Int("index", corrected.Index), zap.String("reason", reason))
			continue
		}

		if strings.TrimSpace(string(corrected.LaborType)) == "" {
			corrected.LaborType = v.cfg.DefaultLaborType
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("labor entry %d: missing labor type, defaulted to %q", corrected.Index, v.cfg.DefaultLaborType))
		}
		corrected.LaborType = LaborType(strings.ToUpper(string(corrected.LaborType)))

		if strings.TrimSpace(corrected.Location) == "" {
			corrected.Location = DefaultLocation
		}

		if corrected.TotalCost.IsZero() {
			corrected.TotalCost = corrected.UnitRate.Mul(corrected.Hours)
		}

		result.Lines = append(result.Lines, corrected)
	}

	if len(result.Errors) > 0 {
		result.Valid = false
	}

	v.log.Info("data validation completed",
		zap.Int("lines", len(result.Lines)),
		zap.Int("errors", len(result.Errors)),
		zap.Int("warnings", len(result.Warnings)))

	return result
}
