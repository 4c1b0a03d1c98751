/*
Package recon provides the core invoice reconciliation engine.

PURPOSE:
  This package contains the domain model and algorithms for auditing vendor
  labor invoices against a Master Services Agreement (MSA) rate schedule:
  input sanitization, rate lookups, deterministic rule evaluation, layered
  anomaly detection, and result aggregation.

KEY CONCEPTS IN THIS FILE (types.go):
  - LaborLineItem: One billed labor line from an extracted invoice
  - RateRecord: One row of the MSA rate schedule
  - Discrepancy: A single flagged deviation from expected billing
  - ReconciliationResult: The aggregated outcome of one reconciliation run

DESIGN PRINCIPLES:
  1. Immutability: A validated LaborLineItem is never mutated; rules and
     anomaly tiers only produce new Discrepancy values
  2. Precision: Uses decimal.Decimal for all monetary and hour quantities
  3. Type Safety: Labor types, discrepancy kinds, and severities are typed
     enums rather than bare strings
  4. Auditability: Every run carries a unique ID and summary counters

SEE ALSO:
  - validator.go: Input sanitization
  - catalog.go: Rate schedule cache
  - rules.go: Deterministic business rules
  - anomaly.go: Layered anomaly detection
  - coordinator.go: Orchestration
*/
package recon

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LABOR TYPES
// =============================================================================

// LaborType is the short role classification code used for rate lookup.
type LaborType string

const (
	LaborRegularSkilled   LaborType = "RS" // Regular skilled labor
	LaborUnskilled        LaborType = "US" // Unskilled labor
	LaborSpecialtySkilled LaborType = "SS" // Specialty skilled labor
	LaborSupervisor       LaborType = "SU" // Supervisor
	LaborEngineer         LaborType = "EN" // Engineer
)

// DefaultLocation is the rate schedule location used when an invoice line
// carries no location, and the fallback when a location-specific rate is
// missing.
const DefaultLocation = "default"

// =============================================================================
// LABOR LINE ITEM - One billed labor line from an extracted invoice
// =============================================================================

// LaborLineItem is a single labor line extracted from a vendor invoice.
// Values arrive from an untrusted extraction stage; DataValidator sanitizes
// them before any rule runs. After validation a line is immutable.
type LaborLineItem struct {
	// Index is the position of this line in the submitted payload. Every
	// discrepancy, exclusion, and missing-rate reference uses it, so the
	// numbering stays stable when other lines are excluded. The batch
	// builder (the API handler, or any other caller) stamps it.
	Index int

	Name      string
	LaborType LaborType
	Location  string
	UnitRate  decimal.Decimal
	Hours     decimal.Decimal
	TotalCost decimal.Decimal
	// Period is an opaque grouping key (typically the billing week) used
	// for duplicate detection. May be empty.
	Period string
}

// EffectiveCost returns TotalCost when present, otherwise UnitRate*Hours.
func (l LaborLineItem) EffectiveCost() decimal.Decimal {
	if !l.TotalCost.IsZero() {
		return l.TotalCost
	}
	return l.UnitRate.Mul(l.Hours)
}

// =============================================================================
// RATE RECORD - One row of the MSA rate schedule
// =============================================================================

// RateRecord is a single entry in the MSA rate schedule. Besides plain
// standard rates, the schedule carries policy rows: overtime thresholds
// (location "overtime_rules") and supervisor ratio limits
// (location "ratio_rules").
type RateRecord struct {
	LaborType     LaborType
	Location      string
	EffectiveDate string
	StandardRate  decimal.Decimal
	Description   string

	// WeeklyThreshold is the weekly overtime threshold override for
	// overtime_rules rows. Nil means no override.
	WeeklyThreshold *decimal.Decimal

	// MaxRatio is the crew-per-supervisor limit for ratio_rules rows
	// (6 means at most one supervisor per six base workers). Nil means
	// no override.
	MaxRatio *decimal.Decimal
}

// RateID returns the schedule key in the external store's "{TYPE}#{LOCATION}"
// format.
func (r RateRecord) RateID() string {
	return string(r.LaborType) + "#" + r.Location
}

// =============================================================================
// DISCREPANCY - A single flagged deviation from expected billing
// =============================================================================

// DiscrepancyKind classifies what rule or detector flagged a line.
type DiscrepancyKind string

const (
	KindRateVariance   DiscrepancyKind = "rate_variance"
	KindOvertime       DiscrepancyKind = "overtime"
	KindDuplicate      DiscrepancyKind = "duplicate"
	KindRatio          DiscrepancyKind = "ratio"
	KindClassification DiscrepancyKind = "classification"
	KindAnomaly        DiscrepancyKind = "anomaly"
)

// Severity grades a discrepancy by financial magnitude.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly categories: which tier of the detection chain produced the flag.
const (
	CategoryRemoteModel        = "remote_model"
	CategoryOvertimeSpike      = "overtime_spike"
	CategoryCostThreshold      = "cost_threshold"
	CategoryStatisticalOutlier = "statistical_outlier"
)

// Discrepancy records one flagged deviation. Only the fields relevant to its
// Kind are populated; the rest stay at their zero values.
type Discrepancy struct {
	Kind      DiscrepancyKind
	Severity  Severity
	LineIndex int
	Worker    string
	LaborType LaborType

	// Rate variance
	BilledRate     decimal.Decimal
	MSARate        decimal.Decimal
	VariancePct    float64
	VarianceAmount decimal.Decimal

	// Overtime
	Hours         decimal.Decimal
	OvertimeHours decimal.Decimal
	Threshold     decimal.Decimal

	// Duplicate
	Rate       decimal.Decimal
	Period     string
	FirstIndex int

	// Ratio
	SupervisorHours decimal.Decimal
	BaseHours       decimal.Decimal
	Ratio           float64
	MaxRatio        float64

	// Anomaly
	Category string
	Score    float64
	Value    decimal.Decimal

	Description string
}

// MissingRate is a note that a line could not be checked for rate variance
// because no schedule entry exists for its type/location. It is not a
// discrepancy; the caller may still want to backfill the schedule.
type MissingRate struct {
	LineIndex int
	Worker    string
	LaborType LaborType
	Location  string
}

// =============================================================================
// RECONCILIATION RESULT - Aggregated outcome of one run
// =============================================================================

// Summary holds per-kind discrepancy counts for one reconciliation run.
type Summary struct {
	TotalDiscrepancies   int
	RateVariances        int
	OvertimeViolations   int
	Duplicates           int
	RatioFlags           int
	ClassificationErrors int
	Anomalies            int
}

// Add increments the counter for the given kind.
func (s *Summary) Add(kind DiscrepancyKind) {
	s.TotalDiscrepancies++
	switch kind {
	case KindRateVariance:
		s.RateVariances++
	case KindOvertime:
		s.OvertimeViolations++
	case KindDuplicate:
		s.Duplicates++
	case KindRatio:
		s.RatioFlags++
	case KindClassification:
		s.ClassificationErrors++
	case KindAnomaly:
		s.Anomalies++
	}
}

// ReconciliationResult aggregates everything one reconciliation run produced.
// TotalSavings is the sum of max(0, variance_amount) across flagged lines,
// rounded to two decimals; it is never negative.
type ReconciliationResult struct {
	ID            string
	Timestamp     time.Time
	Discrepancies []Discrepancy
	MissingRates  []MissingRate
	TotalSavings  decimal.Decimal
	Summary       Summary
	Validation    ValidationResult
}

// ByKind returns the discrepancies of one kind, preserving order.
func (r *ReconciliationResult) ByKind(kind DiscrepancyKind) []Discrepancy {
	var out []Discrepancy
	for _, d := range r.Discrepancies {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}
