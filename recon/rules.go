/*
rules.go - Deterministic business rule evaluation

PURPOSE:
  Applies the contracted MSA business rules to a validated batch and
  produces discrepancy records plus the recoverable savings total.
  Rules are order-independent: each inspects the immutable batch and
  emits its own discrepancies without affecting the others.

RULES:
  Rate variance:   variance_pct = (billed - expected) / expected * 100;
                   flagged above the configured tolerance, with
                   variance_amount = (billed - expected) * hours.
                   Skipped when the expected rate is unknown or <= 0
                   (a missing_rate note is emitted instead).
  Overtime:        hours above the per-type weekly threshold.
  Duplicate:       composite key (lower(name), upper(type), hours, rate,
                   period); repeats reference the first occurrence.
  Role ratio:      supervisor (SU) hours vs base (RS) hours; flagged when
                   one supervisor hour covers fewer base hours than the
                   crew-per-supervisor limit allows. Skipped when no RS
                   hours exist.
  Classification:  labor type must be in the allowed set.

SAVINGS:
  TotalSavings accumulates max(0, variance_amount) across flagged lines,
  so underbilling never reduces the recoverable total.

SEE ALSO:
  - catalog.go: Rate and threshold resolution
  - coordinator.go: Aggregation and rounding
*/
package recon

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// RULE ENGINE
// =============================================================================

// RuleEngine evaluates the deterministic MSA rules over one batch.
type RuleEngine struct {
	catalog *RateCatalog
	cfg     Config
	log     *zap.Logger
}

// NewRuleEngine creates a rule engine bound to a per-request catalog.
func NewRuleEngine(catalog *RateCatalog, cfg Config, log *zap.Logger) *RuleEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &RuleEngine{catalog: catalog, cfg: cfg, log: log}
}

// RuleReport is the outcome of rule evaluation over one batch.
type RuleReport struct {
	Discrepancies []Discrepancy
	MissingRates  []MissingRate
	TotalSavings  decimal.Decimal
}

// dupKey is the duplicate-detection composite key. Name is case-insensitive;
// hours and rate compare at two decimals.
type dupKey struct {
	Name      string
	LaborType string
	Hours     string
	Rate      string
	Period    string
}

func newDupKey(line LaborLineItem) dupKey {
	return dupKey{
		Name:      strings.ToLower(strings.TrimSpace(line.Name)),
		LaborType: string(line.LaborType),
		Hours:     line.Hours.Round(2).String(),
		Rate:      line.UnitRate.Round(2).String(),
		Period:    line.Period,
	}
}

// Evaluate runs every rule over the validated batch. The batch is read-only;
// all findings are emitted as new Discrepancy values. Store failures abort
// evaluation and surface to the caller.
func (e *RuleEngine) Evaluate(ctx context.Context, lines []LaborLineItem) (*RuleReport, error) {
	report := &RuleReport{TotalSavings: decimal.Zero}
	seen := make(map[dupKey]int)

	hoursByType := make(map[LaborType]decimal.Decimal)

	for _, line := range lines {
		hoursByType[line.LaborType] = hoursByType[line.LaborType].Add(line.Hours)

		e.checkClassification(line, report)
		e.checkDuplicate(line, seen, report)

		if err := e.checkRateVariance(ctx, line, report); err != nil {
			return nil, err
		}
		if err := e.checkOvertime(ctx, line, report); err != nil {
			return nil, err
		}
	}

	if err := e.checkRoleRatio(ctx, hoursByType, report); err != nil {
		return nil, err
	}

	e.log.Info("rule evaluation completed",
		zap.Int("lines", len(lines)),
		zap.Int("discrepancies", len(report.Discrepancies)),
		zap.String("savings", report.TotalSavings.Round(2).String()))

	return report, nil
}

// =============================================================================
// INDIVIDUAL RULES
// =============================================================================

func (e *RuleEngine) checkClassification(line LaborLineItem, report *RuleReport) {
	if e.cfg.AllowsLaborType(line.LaborType) {
		return
	}
	report.Discrepancies = append(report.Discrepancies, Discrepancy{
		Kind:      KindClassification,
		Severity:  SeverityMedium,
		LineIndex: line.Index,
		Worker:    line.Name,
		LaborType: line.LaborType,
		Description: fmt.Sprintf("unknown labor type %q for %s; allowed types are %v",
			line.LaborType, line.Name, e.cfg.AllowedLaborTypes),
	})
}

func (e *RuleEngine) checkDuplicate(line LaborLineItem, seen map[dupKey]int, report *RuleReport) {
	key := newDupKey(line)
	first, dup := seen[key]
	if !dup {
		seen[key] = line.Index
		return
	}
	report.Discrepancies = append(report.Discrepancies, Discrepancy{
		Kind:       KindDuplicate,
		Severity:   SeverityHigh,
		LineIndex:  line.Index,
		Worker:     line.Name,
		LaborType:  line.LaborType,
		Hours:      line.Hours,
		Rate:       line.UnitRate,
		Period:     line.Period,
		FirstIndex: first,
		Description: fmt.Sprintf("duplicate billing for %s (%s): %s hours at $%s already billed at entry %d",
			line.Name, line.LaborType, line.Hours, line.UnitRate.Round(2), first),
	})
}

func (e *RuleEngine) checkRateVariance(ctx context.Context, line LaborLineItem, report *RuleReport) error {
	expected, ok, err := e.catalog.Rate(ctx, line.LaborType, line.Location)
	if err != nil {
		return err
	}
	if !ok {
		report.MissingRates = append(report.MissingRates, MissingRate{
			LineIndex: line.Index,
			Worker:    line.Name,
			LaborType: line.LaborType,
			Location:  line.Location,
		})
		return nil
	}
	if !expected.IsPositive() {
		return nil
	}

	variancePct := line.UnitRate.Sub(expected).Div(expected).Mul(decimal.NewFromInt(100))
	if !variancePct.GreaterThan(e.cfg.VarianceThresholdPct) {
		return nil
	}

	amount := line.UnitRate.Sub(expected).Mul(line.Hours)
	if amount.IsPositive() {
		report.TotalSavings = report.TotalSavings.Add(amount)
	}

	severity := SeverityMedium
	if variancePct.GreaterThan(e.cfg.HighVariancePct) {
		severity = SeverityHigh
	}

	report.Discrepancies = append(report.Discrepancies, Discrepancy{
		Kind:           KindRateVariance,
		Severity:       severity,
		LineIndex:      line.Index,
		Worker:         line.Name,
		LaborType:      line.LaborType,
		BilledRate:     line.UnitRate,
		MSARate:        expected,
		VariancePct:    variancePct.Round(2).InexactFloat64(),
		VarianceAmount: amount.Round(2),
		Hours:          line.Hours,
		Description: fmt.Sprintf("rate variance for %s (%s): billed $%s vs MSA $%s over %s hours",
			line.Name, line.LaborType, line.UnitRate.Round(2), expected.Round(2), line.Hours),
	})
	return nil
}

func (e *RuleEngine) checkOvertime(ctx context.Context, line LaborLineItem, report *RuleReport) error {
	threshold, err := e.catalog.OvertimeThreshold(ctx, line.LaborType)
	if err != nil {
		return err
	}
	if !line.Hours.GreaterThan(threshold) {
		return nil
	}

	overtime := line.Hours.Sub(threshold)
	report.Discrepancies = append(report.Discrepancies, Discrepancy{
		Kind:          KindOvertime,
		Severity:      SeverityMedium,
		LineIndex:     line.Index,
		Worker:        line.Name,
		LaborType:     line.LaborType,
		Hours:         line.Hours,
		OvertimeHours: overtime,
		Threshold:     threshold,
		Description: fmt.Sprintf("overtime for %s: %s hours exceeds the %s hour weekly threshold by %s",
			line.Name, line.Hours, threshold, overtime),
	})
	return nil
}

// checkRoleRatio flags batches where supervisory hours outpace base hours.
// With a crew-per-supervisor limit of 6, the allowed SU:RS ratio is 1:6;
// the check su*crew > rs is exactly su/rs > 1/crew without a division.
func (e *RuleEngine) checkRoleRatio(ctx context.Context, hoursByType map[LaborType]decimal.Decimal, report *RuleReport) error {
	suHours := hoursByType[LaborSupervisor]
	rsHours := hoursByType[LaborRegularSkilled]
	if rsHours.IsZero() || suHours.IsZero() {
		return nil
	}

	crew, err := e.catalog.CrewPerSupervisor(ctx)
	if err != nil {
		return err
	}
	if !suHours.Mul(crew).GreaterThan(rsHours) {
		return nil
	}

	ratio := suHours.Div(rsHours)
	severity := SeverityMedium
	if ratio.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		severity = SeverityHigh
	}

	report.Discrepancies = append(report.Discrepancies, Discrepancy{
		Kind:            KindRatio,
		Severity:        severity,
		LaborType:       LaborSupervisor,
		SupervisorHours: suHours,
		BaseHours:       rsHours,
		Ratio:           ratio.Round(2).InexactFloat64(),
		MaxRatio:        decimal.NewFromInt(1).Div(crew).Round(4).InexactFloat64(),
		Description: fmt.Sprintf("supervisor ratio abuse: %s SU hours against %s RS hours exceeds the 1:%s limit",
			suHours, rsHours, crew),
	})
	return nil
}
