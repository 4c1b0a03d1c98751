package recon_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditworks/recon-engine/recon"
	memstore "github.com/auditworks/recon-engine/recon/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================
// Shared by catalog_test.go, anomaly_test.go, and coordinator_test.go.

const testEffectiveDate = "2024-01-01"

// testConfig returns defaults with a retry delay short enough for tests.
func testConfig() recon.Config {
	cfg := recon.DefaultConfig()
	cfg.ScoringRetryDelay = time.Millisecond
	return cfg
}

// seededStore returns an in-memory schedule with the standard MSA rates.
func seededStore(t *testing.T) *memstore.Memory {
	t.Helper()
	m := memstore.NewMemory()
	ctx := context.Background()

	put := func(lt recon.LaborType, location string, rate float64) {
		require.NoError(t, m.PutRate(ctx, recon.RateRecord{
			LaborType:     lt,
			Location:      location,
			EffectiveDate: testEffectiveDate,
			StandardRate:  decimal.NewFromFloat(rate),
		}))
	}
	put(recon.LaborRegularSkilled, "default", 70)
	put(recon.LaborUnskilled, "default", 45)
	put(recon.LaborSpecialtySkilled, "default", 55)
	put(recon.LaborSupervisor, "default", 85)
	put(recon.LaborRegularSkilled, "high_cost", 85)
	return m
}

// batch stamps submitted-payload positions onto the given lines, the way the
// API handler does when it parses a request.
func batch(lines ...recon.LaborLineItem) []recon.LaborLineItem {
	for i := range lines {
		lines[i].Index = i
	}
	return lines
}

// line builds a validated labor line with total cost derived from rate*hours.
func line(name string, lt recon.LaborType, rate, hours float64) recon.LaborLineItem {
	r := decimal.NewFromFloat(rate)
	h := decimal.NewFromFloat(hours)
	return recon.LaborLineItem{
		Name:      name,
		LaborType: lt,
		Location:  "default",
		UnitRate:  r,
		Hours:     h,
		TotalCost: r.Mul(h),
	}
}

func newRuleEngine(t *testing.T, store recon.RateStore) *recon.RuleEngine {
	t.Helper()
	cfg := testConfig()
	catalog := recon.NewRateCatalog(store, cfg, nil)
	return recon.NewRuleEngine(catalog, cfg, nil)
}

// =============================================================================
// RATE VARIANCE
// =============================================================================

func TestRuleEngine_RateVariance_WorkedExample(t *testing.T) {
	// GIVEN: Billed $77/h against an MSA rate of $70/h over 40 hours
	// WHEN: Rules are evaluated
	// THEN: variance_percentage = 10.0, variance_amount = 280.0

	engine := newRuleEngine(t, seededStore(t))
	report, err := engine.Evaluate(context.Background(), []recon.LaborLineItem{
		line("Alice", recon.LaborRegularSkilled, 77, 40),
	})
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	assert.Equal(t, recon.KindRateVariance, d.Kind)
	assert.Equal(t, 10.0, d.VariancePct)
	assert.True(t, d.VarianceAmount.Equal(decimal.NewFromInt(280)), "got %s", d.VarianceAmount)
	assert.True(t, d.MSARate.Equal(decimal.NewFromInt(70)))
	assert.Equal(t, recon.SeverityMedium, d.Severity)
	assert.True(t, report.TotalSavings.Equal(decimal.NewFromInt(280)), "got %s", report.TotalSavings)
}

func TestRuleEngine_RateVariance_AtThreshold_NotFlagged(t *testing.T) {
	// GIVEN: Billed exactly 5% above the MSA rate (73.50 vs 70.00)
	// WHEN: Rules are evaluated with the default 5% tolerance
	// THEN: No variance discrepancy (threshold is exclusive)

	engine := newRuleEngine(t, seededStore(t))
	report, err := engine.Evaluate(context.Background(), []recon.LaborLineItem{
		line("Alice", recon.LaborRegularSkilled, 73.50, 40),
	})
	require.NoError(t, err)
	assert.Empty(t, report.Discrepancies)
	assert.True(t, report.TotalSavings.IsZero())
}

func TestRuleEngine_RateVariance_Underbilling_NoSavings(t *testing.T) {
	// GIVEN: One line overbilled 10%, one underbilled 50%
	// WHEN: Rules are evaluated
	// THEN: Only the overbilled line is flagged and savings stay positive

	engine := newRuleEngine(t, seededStore(t))
	report, err := engine.Evaluate(context.Background(), batch(
		line("Alice", recon.LaborRegularSkilled, 77, 40),
		line("Bob", recon.LaborRegularSkilled, 35, 40),
	))
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, "Alice", report.Discrepancies[0].Worker)
	assert.True(t, report.TotalSavings.Equal(decimal.NewFromInt(280)))
}

func TestRuleEngine_RateVariance_HighSeverityAbove15Pct(t *testing.T) {
	// GIVEN: Billed $100/h against $70/h (≈43% variance)
	// WHEN: Rules are evaluated
	// THEN: The discrepancy is graded high severity

	engine := newRuleEngine(t, seededStore(t))
	report, err := engine.Evaluate(context.Background(), []recon.LaborLineItem{
		line("Alice", recon.LaborRegularSkilled, 100, 40),
	})
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, recon.SeverityHigh, report.Discrepancies[0].Severity)
}

func TestRuleEngine_MissingRate_SkipsVarianceAndNotes(t *testing.T) {
	// GIVEN: An EN line with no EN entry anywhere on the schedule
	// WHEN: Rules are evaluated
	// THEN: No variance discrepancy; a missing_rate note is emitted

	engine := newRuleEngine(t, seededStore(t))
	report, err := engine.Evaluate(context.Background(), []recon.LaborLineItem{
		line("Eve", recon.LaborEngineer, 120, 40),
	})
	require.NoError(t, err)

	assert.Empty(t, report.Discrepancies)
	require.Len(t, report.MissingRates, 1)
	assert.Equal(t, recon.LaborEngineer, report.MissingRates[0].LaborType)
	assert.Equal(t, "Eve", report.MissingRates[0].Worker)
}

// =============================================================================
// OVERTIME
// =============================================================================

func TestRuleEngine_Overtime_WorkedExample(t *testing.T) {
	// GIVEN: 45 hours against a 40 hour weekly threshold
	// WHEN: Rules are evaluated
	// THEN: overtime_hours = 5.0

	engine := newRuleEngine(t, seededStore(t))
	report, err := engine.Evaluate(context.Background(), []recon.LaborLineItem{
		line("Alice", recon.LaborRegularSkilled, 70, 45),
	})
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	assert.Equal(t, recon.KindOvertime, d.Kind)
	assert.True(t, d.OvertimeHours.Equal(decimal.NewFromInt(5)), "got %s", d.OvertimeHours)
	assert.True(t, d.Threshold.Equal(decimal.NewFromInt(40)))
}

func TestRuleEngine_Overtime_ScheduleOverrideHonored(t *testing.T) {
	// GIVEN: A per-type overtime_rules row setting the SS threshold to 35h
	// WHEN: An SS line bills 38 hours
	// THEN: 3 overtime hours are flagged

	store := seededStore(t)
	threshold := decimal.NewFromInt(35)
	require.NoError(t, store.PutRate(context.Background(), recon.RateRecord{
		LaborType:       recon.LaborSpecialtySkilled,
		Location:        "overtime_rules",
		EffectiveDate:   testEffectiveDate,
		WeeklyThreshold: &threshold,
	}))

	engine := newRuleEngine(t, store)
	report, err := engine.Evaluate(context.Background(), []recon.LaborLineItem{
		line("Sam", recon.LaborSpecialtySkilled, 55, 38),
	})
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	assert.True(t, report.Discrepancies[0].OvertimeHours.Equal(decimal.NewFromInt(3)))
}

// =============================================================================
// DUPLICATES
// =============================================================================

func TestRuleEngine_Duplicate_CaseInsensitiveName_SingleFlag(t *testing.T) {
	// GIVEN: Two structurally identical lines, names "Alice" and "ALICE"
	// WHEN: Rules are evaluated
	// THEN: Exactly one duplicate discrepancy referencing the first index

	engine := newRuleEngine(t, seededStore(t))
	a := line("Alice", recon.LaborRegularSkilled, 70, 40)
	b := line("ALICE", recon.LaborRegularSkilled, 70, 40)
	a.Period, b.Period = "2024-W01", "2024-W01"

	report, err := engine.Evaluate(context.Background(), batch(a, b))
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	assert.Equal(t, recon.KindDuplicate, d.Kind)
	assert.Equal(t, 1, d.LineIndex)
	assert.Equal(t, 0, d.FirstIndex)
	assert.Equal(t, recon.SeverityHigh, d.Severity)
}

func TestRuleEngine_Duplicate_DifferentPeriod_NotFlagged(t *testing.T) {
	// GIVEN: Identical lines billed in different periods
	// WHEN: Rules are evaluated
	// THEN: No duplicate discrepancy (a weekly recurring shift is legal)

	engine := newRuleEngine(t, seededStore(t))
	a := line("Alice", recon.LaborRegularSkilled, 70, 40)
	b := line("Alice", recon.LaborRegularSkilled, 70, 40)
	a.Period, b.Period = "2024-W01", "2024-W02"

	report, err := engine.Evaluate(context.Background(), batch(a, b))
	require.NoError(t, err)
	assert.Empty(t, report.Discrepancies)
}

// =============================================================================
// ROLE RATIO
// =============================================================================

func TestRuleEngine_RoleRatio_ExceedsDefaultLimit(t *testing.T) {
	// GIVEN: 50 SU hours against 10 RS hours (5:1 vs allowed 1:6)
	// WHEN: Rules are evaluated
	// THEN: One ratio discrepancy with the observed ratio

	engine := newRuleEngine(t, seededStore(t))
	report, err := engine.Evaluate(context.Background(), batch(
		line("Bob", recon.LaborSupervisor, 85, 50),
		line("Carol", recon.LaborRegularSkilled, 70, 10),
	))
	require.NoError(t, err)

	var ratios []recon.Discrepancy
	for _, d := range report.Discrepancies {
		if d.Kind == recon.KindRatio {
			ratios = append(ratios, d)
		}
	}
	require.Len(t, ratios, 1)
	assert.Equal(t, 5.0, ratios[0].Ratio)
	assert.Equal(t, recon.SeverityHigh, ratios[0].Severity)
}

func TestRuleEngine_RoleRatio_NoBaseHours_Skipped(t *testing.T) {
	// GIVEN: Supervisor hours only, no RS hours at all
	// WHEN: Rules are evaluated
	// THEN: The ratio rule is skipped (no division, no flag)

	engine := newRuleEngine(t, seededStore(t))
	report, err := engine.Evaluate(context.Background(), []recon.LaborLineItem{
		line("Bob", recon.LaborSupervisor, 85, 40),
	})
	require.NoError(t, err)

	for _, d := range report.Discrepancies {
		assert.NotEqual(t, recon.KindRatio, d.Kind)
	}
}

func TestRuleEngine_RoleRatio_WithinLimit_NotFlagged(t *testing.T) {
	// GIVEN: 5 SU hours against 40 RS hours (1:8, within 1:6)
	// WHEN: Rules are evaluated
	// THEN: No ratio discrepancy

	engine := newRuleEngine(t, seededStore(t))
	report, err := engine.Evaluate(context.Background(), batch(
		line("Bob", recon.LaborSupervisor, 85, 5),
		line("Carol", recon.LaborRegularSkilled, 70, 40),
	))
	require.NoError(t, err)

	for _, d := range report.Discrepancies {
		assert.NotEqual(t, recon.KindRatio, d.Kind)
	}
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

func TestRuleEngine_Classification_UnknownTypeFlagged(t *testing.T) {
	// GIVEN: A line classified "XX", outside the allowed set
	// WHEN: Rules are evaluated
	// THEN: A classification discrepancy is emitted

	engine := newRuleEngine(t, seededStore(t))
	report, err := engine.Evaluate(context.Background(), []recon.LaborLineItem{
		line("Zed", recon.LaborType("XX"), 70, 40),
	})
	require.NoError(t, err)

	var found bool
	for _, d := range report.Discrepancies {
		if d.Kind == recon.KindClassification {
			found = true
			assert.Equal(t, recon.LaborType("XX"), d.LaborType)
		}
	}
	assert.True(t, found, "expected a classification discrepancy")
}
