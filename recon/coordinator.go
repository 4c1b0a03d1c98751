/*
coordinator.go - Reconciliation orchestration

PURPOSE:
  Runs one reconciliation request end to end: sanitize the extracted
  batch, evaluate the deterministic rules, run the anomaly chain, and
  aggregate a single ReconciliationResult.

FLOW:
  raw batch -> DataValidator -> RuleEngine (RateCatalog lookups)
            -> AnomalyDetector -> ReconciliationResult

  The coordinator proceeds with corrected data even when validation found
  hard errors; those errors travel with the result so the caller decides
  what to do with them. Only an empty payload or a rate store fault stops
  a run.

CONCURRENCY:
  Each call builds its own RateCatalog, so concurrent reconciliations are
  fully independent. The coordinator itself holds only immutable
  configuration and collaborator handles and is safe for concurrent use.

SEE ALSO:
  - validator.go, rules.go, anomaly.go: The stages
  - api/handlers.go: HTTP entry point
*/
package recon

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Coordinator orchestrates the reconciliation pipeline. Construct once and
// reuse across requests.
type Coordinator struct {
	store  RateStore
	scorer Scorer
	cfg    Config
	log    *zap.Logger

	validator *DataValidator
}

// NewCoordinator wires the pipeline. scorer may be nil, which disables the
// remote anomaly tier. A nil logger disables logging.
func NewCoordinator(store RateStore, scorer Scorer, cfg Config, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:     store,
		scorer:    scorer,
		cfg:       cfg,
		log:       log,
		validator: NewDataValidator(cfg, log),
	}
}

// Reconcile audits one extracted labor batch against the MSA schedule.
// Returns ErrEmptyPayload for an empty batch and a RateStoreError when the
// schedule store fails; anomaly-tier failures never surface here.
func (c *Coordinator) Reconcile(ctx context.Context, lines []LaborLineItem) (*ReconciliationResult, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyPayload
	}

	runID := uuid.NewString()
	log := c.log.With(zap.String("reconciliation_id", runID))
	log.Info("reconciliation started", zap.Int("lines", len(lines)))

	validation := c.validator.Validate(lines)

	// Per-request catalog: lookups are cached for this run only.
	catalog := NewRateCatalog(c.store, c.cfg, log)

	engine := NewRuleEngine(catalog, c.cfg, log)
	report, err := engine.Evaluate(ctx, validation.Lines)
	if err != nil {
		log.Error("rule evaluation failed", zap.Error(err))
		return nil, err
	}

	detector := NewAnomalyDetector(c.scorer, catalog, c.cfg, log)
	anomalies := detector.Detect(ctx, validation.Lines)

	result := &ReconciliationResult{
		ID:            runID,
		Timestamp:     time.Now().UTC(),
		Discrepancies: append(report.Discrepancies, anomalies...),
		MissingRates:  report.MissingRates,
		TotalSavings:  report.TotalSavings.Round(2),
		Validation:    validation,
	}
	for _, d := range result.Discrepancies {
		result.Summary.Add(d.Kind)
	}

	log.Info("reconciliation completed",
		zap.Int("discrepancies", result.Summary.TotalDiscrepancies),
		zap.String("total_savings", result.TotalSavings.String()))

	return result, nil
}
