package recon_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditworks/recon-engine/recon"
)

func newCoordinator(t *testing.T, scorer recon.Scorer) *recon.Coordinator {
	t.Helper()
	return recon.NewCoordinator(seededStore(t), scorer, testConfig(), nil)
}

func TestCoordinator_OverbilledLine_EndToEnd(t *testing.T) {
	// GIVEN: Alice billed at $77/h against the $70/h RS schedule rate,
	//        40 hours
	// WHEN: The full pipeline runs
	// THEN: One rate variance (10%, $280) and total savings of $280

	result, err := newCoordinator(t, nil).Reconcile(context.Background(), []recon.LaborLineItem{
		line("Alice", recon.LaborRegularSkilled, 77, 40),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.ID)
	assert.False(t, result.Timestamp.IsZero())
	assert.Equal(t, 1, result.Summary.TotalDiscrepancies)
	assert.Equal(t, 1, result.Summary.RateVariances)

	variances := result.ByKind(recon.KindRateVariance)
	require.Len(t, variances, 1)
	assert.Equal(t, 10.0, variances[0].VariancePct)
	assert.True(t, variances[0].VarianceAmount.Equal(decimal.NewFromInt(280)))
	assert.True(t, result.TotalSavings.Equal(decimal.NewFromInt(280)), "got %s", result.TotalSavings)
}

func TestCoordinator_SupervisorRatio_EndToEnd(t *testing.T) {
	// GIVEN: Bob (SU) bills 50 hours, Carol (RS) bills 10 hours
	// WHEN: The full pipeline runs
	// THEN: One ratio discrepancy at 5.0, plus Bob's overtime

	result, err := newCoordinator(t, nil).Reconcile(context.Background(), batch(
		line("Bob", recon.LaborSupervisor, 85, 50),
		line("Carol", recon.LaborRegularSkilled, 70, 10),
	))
	require.NoError(t, err)

	ratios := result.ByKind(recon.KindRatio)
	require.Len(t, ratios, 1)
	assert.Equal(t, 5.0, ratios[0].Ratio)
	assert.Equal(t, 1, result.Summary.RatioFlags)
	assert.Equal(t, 1, result.Summary.OvertimeViolations)
}

func TestCoordinator_EmptyPayload(t *testing.T) {
	_, err := newCoordinator(t, nil).Reconcile(context.Background(), nil)

	require.ErrorIs(t, err, recon.ErrEmptyPayload)
	assert.True(t, recon.IsClientError(err))
}

func TestCoordinator_ValidationErrors_DoNotAbort(t *testing.T) {
	// GIVEN: A batch with one nameless line and one overbilled line
	// WHEN: The full pipeline runs
	// THEN: The run completes; the error travels with the result and the
	//       surviving line is still reconciled under its submitted index

	nameless := line("", recon.LaborRegularSkilled, 70, 40)
	result, err := newCoordinator(t, nil).Reconcile(context.Background(), batch(
		nameless,
		line("Alice", recon.LaborRegularSkilled, 77, 40),
	))
	require.NoError(t, err)

	assert.False(t, result.Validation.Valid)
	assert.Len(t, result.Validation.Errors, 1)
	require.Len(t, result.ByKind(recon.KindRateVariance), 1)
	variance := result.ByKind(recon.KindRateVariance)[0]
	assert.Equal(t, "Alice", variance.Worker)
	// Excluding line 0 must not renumber Alice's finding.
	assert.Equal(t, 1, variance.LineIndex)
}

func TestCoordinator_NegativeInputs_CorrectedThenReconciled(t *testing.T) {
	// GIVEN: Alice's rate and hours arrive negated by a bad extraction
	// WHEN: The full pipeline runs
	// THEN: The corrected values drive the same variance finding, with
	//       warnings attached

	input := recon.LaborLineItem{
		Name:      "Alice",
		LaborType: recon.LaborRegularSkilled,
		Location:  "default",
		UnitRate:  decimal.NewFromInt(-77),
		Hours:     decimal.NewFromInt(-40),
	}
	result, err := newCoordinator(t, nil).Reconcile(context.Background(), []recon.LaborLineItem{input})
	require.NoError(t, err)

	assert.NotEmpty(t, result.Validation.Warnings)
	require.Len(t, result.ByKind(recon.KindRateVariance), 1)
	assert.True(t, result.TotalSavings.Equal(decimal.NewFromInt(280)))
}

func TestCoordinator_MissingRate_Surfaced(t *testing.T) {
	result, err := newCoordinator(t, nil).Reconcile(context.Background(), []recon.LaborLineItem{
		line("Eve", recon.LaborEngineer, 120, 40),
	})
	require.NoError(t, err)

	require.Len(t, result.MissingRates, 1)
	assert.Equal(t, recon.LaborEngineer, result.MissingRates[0].LaborType)
	assert.Empty(t, result.ByKind(recon.KindRateVariance))
}

func TestCoordinator_ScorerFaults_NeverFatal(t *testing.T) {
	// GIVEN: A remote scorer that fails permanently
	// WHEN: The full pipeline runs
	// THEN: The run succeeds and the anomaly chain degraded silently

	scorer := &fakeScorer{errs: []error{recon.ErrScorerInvalidInput}}
	result, err := newCoordinator(t, scorer).Reconcile(context.Background(), batch(
		line("Alice", recon.LaborRegularSkilled, 70, 40),
		line("Bob", recon.LaborUnskilled, 45, 40),
	))
	require.NoError(t, err)
	assert.Equal(t, 1, scorer.calls)
	assert.NotNil(t, result)
}

func TestCoordinator_SummaryCountsMatchDiscrepancies(t *testing.T) {
	result, err := newCoordinator(t, nil).Reconcile(context.Background(), []recon.LaborLineItem{
		line("Alice", recon.LaborRegularSkilled, 77, 45),
	})
	require.NoError(t, err)

	assert.Equal(t, len(result.Discrepancies), result.Summary.TotalDiscrepancies)
	assert.Equal(t, 1, result.Summary.RateVariances)
	assert.Equal(t, 1, result.Summary.OvertimeViolations)
	assert.Equal(t, 1, result.Summary.Anomalies) // overtime spike heuristic
}
