/*
config.go - Engine configuration value object

PURPOSE:
  Collects every tunable the engine uses in one explicit value object,
  constructed once and passed to all components. There is no hidden global
  state and no environment reads inside the engine; the binary decides how
  Config is populated (flags, env, hardcoded defaults).

DEFAULTS:
  All defaults mirror the contracted MSA policy:
  - 5% billed-vs-standard rate variance tolerance
  - 40h weekly overtime threshold (schedule-overridable per type)
  - One supervisor per six base workers (SU:RS 1:6)
  - Anomaly score threshold of 2.0 standard deviations
  - Remote scoring: 3 attempts, 2s base delay, exponential backoff x2

SEE ALSO:
  - rules.go, anomaly.go, validator.go: Consumers of these values
  - catalog.go: Falls back to these when the schedule has no override
*/
package recon

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds every engine tunable. Use DefaultConfig() and override fields
// as needed; the zero value is not usable.
type Config struct {
	// VarianceThresholdPct is the billed-vs-MSA rate variance tolerance in
	// percent. Variances at or below it are not flagged.
	VarianceThresholdPct decimal.Decimal

	// HighVariancePct is the variance percentage above which a rate
	// variance is graded high severity.
	HighVariancePct decimal.Decimal

	// OvertimeThresholdHours is the weekly overtime threshold used when the
	// rate schedule has no per-type override.
	OvertimeThresholdHours decimal.Decimal

	// CrewPerSupervisor is the maximum base-worker hours one supervisor
	// hour may cover (6 means SU:RS at most 1:6). Schedule-overridable.
	CrewPerSupervisor decimal.Decimal

	// CostOverrunFactor flags lines whose total cost exceeds
	// unit_rate*hours by this factor (1.1 = 10% slack).
	CostOverrunFactor decimal.Decimal

	// AnomalyScoreThreshold is the |score| (in standard deviations) above
	// which a line is flagged, for both the remote and statistical tiers.
	AnomalyScoreThreshold float64

	// HighAnomalyScore is the |score| above which an anomaly is graded
	// high severity.
	HighAnomalyScore float64

	// MaxUnitRate / MaxWeeklyHours bound plausible input; values beyond
	// them are warned about but still processed.
	MaxUnitRate    decimal.Decimal
	MaxWeeklyHours decimal.Decimal

	// DefaultLaborType is assigned to lines arriving without a type.
	DefaultLaborType LaborType

	// AllowedLaborTypes is the closed set accepted by the classification
	// rule.
	AllowedLaborTypes []LaborType

	// EffectiveDate selects the rate schedule revision to audit against.
	EffectiveDate string

	// Remote scoring retry budget. Worst-case added latency is
	// deterministic: sum of the (MaxScoringAttempts-1) backoff delays.
	MaxScoringAttempts   int
	ScoringRetryDelay    time.Duration
	ScoringBackoffFactor float64
}

// DefaultConfig returns the contracted MSA defaults.
func DefaultConfig() Config {
	return Config{
		VarianceThresholdPct:   decimal.NewFromInt(5),
		HighVariancePct:        decimal.NewFromInt(15),
		OvertimeThresholdHours: decimal.NewFromInt(40),
		CrewPerSupervisor:      decimal.NewFromInt(6),
		CostOverrunFactor:      decimal.NewFromFloat(1.1),
		AnomalyScoreThreshold:  2.0,
		HighAnomalyScore:       3.0,
		MaxUnitRate:            decimal.NewFromInt(1000),
		MaxWeeklyHours:         decimal.NewFromInt(168),
		DefaultLaborType:       LaborRegularSkilled,
		AllowedLaborTypes: []LaborType{
			LaborRegularSkilled,
			LaborUnskilled,
			LaborSpecialtySkilled,
			LaborSupervisor,
			LaborEngineer,
		},
		EffectiveDate:        "2024-01-01",
		MaxScoringAttempts:   3,
		ScoringRetryDelay:    2 * time.Second,
		ScoringBackoffFactor: 2.0,
	}
}

// AllowsLaborType reports whether t is in the allowed classification set.
func (c Config) AllowsLaborType(t LaborType) bool {
	for _, a := range c.AllowedLaborTypes {
		if a == t {
			return true
		}
	}
	return false
}
