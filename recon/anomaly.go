/*
anomaly.go - Layered anomaly detection over a labor batch

PURPOSE:
  Flags statistically unusual labor lines using a three-tier fallback
  strategy chain:

    1. Remote scoring: z-score-normalized feature vectors are sent to an
       external scoring model. Transient faults (throttling, unavailable)
       are retried with exponential backoff; permanent faults (model or
       validation errors) abandon the tier immediately.
    2. Rule heuristics: overtime spikes and cost overruns. ALWAYS applied
       on top of whichever primary tier succeeded.
    3. Statistical fallback: local population z-score over total cost.
       Used only when the remote tier failed entirely.

  The chain is explicit: each strategy returns a result-or-failure value
  and the detector walks the chain, instead of branching on vendor error
  codes inline.

FAILURE SEMANTICS:
  Nothing here is ever fatal to a reconciliation. A remote failure, an
  exhausted retry budget, or a fault while preparing features all degrade
  gracefully to the statistical tier. The retry budget is bounded, so
  worst-case added latency is deterministic.

FEATURES:
  One vector per line: [hours, overtime_hours, unit_rate, total_cost].
  Columns are normalized by population z-score before the remote call;
  a zero standard deviation is treated as 1 to avoid division faults.

SEE ALSO:
  - errors.go: Transient/permanent scorer error taxonomy
  - store.go: Scorer interface
  - scoring/http.go: HTTP scoring collaborator
*/
package recon

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// STRATEGY CHAIN
// =============================================================================

// AnomalyStrategy is one tier of the detection chain. A strategy either
// succeeds with its findings (possibly none) or fails, in which case the
// detector moves on to the next tier.
type AnomalyStrategy interface {
	Name() string
	Detect(ctx context.Context, lines []LaborLineItem, features [][]float64) ([]Discrepancy, error)
}

// AnomalyDetector walks the strategy chain for one batch.
type AnomalyDetector struct {
	catalog *RateCatalog
	cfg     Config
	log     *zap.Logger

	primary    []AnomalyStrategy // first success wins
	heuristics AnomalyStrategy   // always applied on top
}

// NewAnomalyDetector builds the chain. A nil scorer disables the remote tier
// so the statistical fallback leads.
func NewAnomalyDetector(scorer Scorer, catalog *RateCatalog, cfg Config, log *zap.Logger) *AnomalyDetector {
	if log == nil {
		log = zap.NewNop()
	}

	stats := &StatisticalStrategy{cfg: cfg, log: log}
	var primary []AnomalyStrategy
	if scorer != nil {
		primary = append(primary, &RemoteStrategy{scorer: scorer, cfg: cfg, log: log})
	}
	primary = append(primary, stats)

	return &AnomalyDetector{
		catalog:    catalog,
		cfg:        cfg,
		log:        log,
		primary:    primary,
		heuristics: &RuleStrategy{cfg: cfg, log: log},
	}
}

// Detect returns the anomalies found for the batch. It never returns an
// error: every tier failure degrades to the next tier, and the heuristics
// tier cannot fail.
func (d *AnomalyDetector) Detect(ctx context.Context, lines []LaborLineItem) []Discrepancy {
	if len(lines) == 0 {
		return nil
	}

	features, err := d.buildFeatures(ctx, lines)
	chain := d.primary
	if err != nil {
		// Feature preparation failed (rate store fault resolving overtime
		// thresholds). The statistical tier only needs costs, so skip
		// straight to it rather than aborting the reconciliation.
		d.log.Warn("feature preparation failed, degrading to statistical fallback", zap.Error(err))
		chain = chain[len(chain)-1:]
		features = nil
	}

	var anomalies []Discrepancy
	for _, strategy := range chain {
		found, err := strategy.Detect(ctx, lines, features)
		if err != nil {
			d.log.Warn("anomaly strategy failed, falling back",
				zap.String("strategy", strategy.Name()), zap.Error(err))
			continue
		}
		d.log.Info("anomaly detection completed",
			zap.String("strategy", strategy.Name()), zap.Int("anomalies", len(found)))
		anomalies = found
		break
	}

	heuristic, _ := d.heuristics.Detect(ctx, lines, features)
	return append(anomalies, heuristic...)
}

// buildFeatures extracts one [hours, overtime_hours, unit_rate, total_cost]
// vector per line.
func (d *AnomalyDetector) buildFeatures(ctx context.Context, lines []LaborLineItem) ([][]float64, error) {
	features := make([][]float64, 0, len(lines))
	for _, line := range lines {
		threshold, err := d.catalog.OvertimeThreshold(ctx, line.LaborType)
		if err != nil {
			return nil, err
		}
		overtime := decimal.Max(decimal.Zero, line.Hours.Sub(threshold))
		features = append(features, []float64{
			line.Hours.InexactFloat64(),
			overtime.InexactFloat64(),
			line.UnitRate.InexactFloat64(),
			line.EffectiveCost().InexactFloat64(),
		})
	}
	return features, nil
}

// =============================================================================
// TIER 1 - REMOTE SCORING
// =============================================================================

// RemoteStrategy normalizes the feature batch and submits it to the external
// scoring model, retrying transient faults with exponential backoff.
type RemoteStrategy struct {
	scorer Scorer
	cfg    Config
	log    *zap.Logger
}

func (s *RemoteStrategy) Name() string { return "remote_model" }

func (s *RemoteStrategy) Detect(ctx context.Context, lines []LaborLineItem, features [][]float64) ([]Discrepancy, error) {
	if len(features) == 0 {
		return nil, nil
	}

	scores, err := s.invoke(ctx, normalize(features))
	if err != nil {
		return nil, err
	}
	if len(scores) != len(lines) {
		return nil, fmt.Errorf("%w: %d scores for %d lines", ErrScorerModel, len(scores), len(lines))
	}

	var anomalies []Discrepancy
	for i, score := range scores {
		if math.Abs(score) <= s.cfg.AnomalyScoreThreshold {
			continue
		}
		severity := SeverityMedium
		if math.Abs(score) > s.cfg.HighAnomalyScore {
			severity = SeverityHigh
		}
		anomalies = append(anomalies, Discrepancy{
			Kind:      KindAnomaly,
			Severity:  severity,
			LineIndex: lines[i].Index,
			Worker:    lines[i].Name,
			LaborType: lines[i].LaborType,
			Category:  CategoryRemoteModel,
			Score:     round2(score),
			Value:     lines[i].EffectiveCost(),
			Description: fmt.Sprintf("labor cost $%s scored %.2f by the anomaly model (threshold %.1f)",
				lines[i].EffectiveCost().Round(2), score, s.cfg.AnomalyScoreThreshold),
		})
	}
	return anomalies, nil
}

// invoke calls the scorer with a bounded retry budget. Transient faults are
// retried with exponential backoff; permanent faults abort immediately.
func (s *RemoteStrategy) invoke(ctx context.Context, features [][]float64) ([]float64, error) {
	delay := s.cfg.ScoringRetryDelay
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxScoringAttempts; attempt++ {
		scores, err := s.scorer.Score(ctx, features)
		if err == nil {
			return scores, nil
		}
		if IsPermanentScore(err) {
			s.log.Warn("permanent scoring fault, abandoning remote tier",
				zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}

		lastErr = err
		if attempt == s.cfg.MaxScoringAttempts {
			break
		}
		s.log.Warn("transient scoring fault, retrying",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay = time.Duration(float64(delay) * s.cfg.ScoringBackoffFactor)
	}
	return nil, &ScoreAttemptError{Attempts: s.cfg.MaxScoringAttempts, Last: lastErr}
}

// normalize applies per-column population z-score scaling. A zero standard
// deviation is treated as 1.
func normalize(features [][]float64) [][]float64 {
	if len(features) == 0 {
		return nil
	}
	cols := len(features[0])
	out := make([][]float64, len(features))

	for c := 0; c < cols; c++ {
		col := make([]float64, len(features))
		for i, f := range features {
			col[i] = f[c]
		}
		mean, std := populationStats(col)
		if std == 0 {
			std = 1
		}
		for i := range features {
			if out[i] == nil {
				out[i] = make([]float64, cols)
			}
			out[i][c] = (features[i][c] - mean) / std
		}
	}
	return out
}

// =============================================================================
// TIER 2 - RULE HEURISTICS (always applied)
// =============================================================================

// RuleStrategy flags overtime spikes and cost overruns. Pure arithmetic over
// the batch; it cannot fail.
type RuleStrategy struct {
	cfg Config
	log *zap.Logger
}

func (s *RuleStrategy) Name() string { return "rule_heuristics" }

func (s *RuleStrategy) Detect(_ context.Context, lines []LaborLineItem, features [][]float64) ([]Discrepancy, error) {
	var anomalies []Discrepancy
	for i, line := range lines {
		if features != nil && features[i][1] > 0 {
			anomalies = append(anomalies, Discrepancy{
				Kind:          KindAnomaly,
				Severity:      SeverityMedium,
				LineIndex:     line.Index,
				Worker:        line.Name,
				LaborType:     line.LaborType,
				Category:      CategoryOvertimeSpike,
				OvertimeHours: decimal.NewFromFloat(features[i][1]),
				Value:         line.Hours,
				Description: fmt.Sprintf("%s billed %s hours including %.1f overtime hours",
					line.Name, line.Hours, features[i][1]),
			})
		}

		expected := line.UnitRate.Mul(line.Hours)
		if expected.IsPositive() && line.EffectiveCost().GreaterThan(expected.Mul(s.cfg.CostOverrunFactor)) {
			anomalies = append(anomalies, Discrepancy{
				Kind:      KindAnomaly,
				Severity:  SeverityMedium,
				LineIndex: line.Index,
				Worker:    line.Name,
				LaborType: line.LaborType,
				Category:  CategoryCostThreshold,
				Value:     line.EffectiveCost(),
				Description: fmt.Sprintf("total cost $%s exceeds expected $%s (rate x hours) by more than %s%%",
					line.EffectiveCost().Round(2), expected.Round(2),
					s.cfg.CostOverrunFactor.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).Round(0)),
			})
		}
	}
	return anomalies, nil
}

// =============================================================================
// TIER 3 - STATISTICAL FALLBACK
// =============================================================================

// StatisticalStrategy flags total-cost outliers by local population z-score.
// With fewer than two lines or zero variance there is nothing to flag.
type StatisticalStrategy struct {
	cfg Config
	log *zap.Logger
}

func (s *StatisticalStrategy) Name() string { return "statistical_fallback" }

func (s *StatisticalStrategy) Detect(_ context.Context, lines []LaborLineItem, _ [][]float64) ([]Discrepancy, error) {
	if len(lines) < 2 {
		return nil, nil
	}

	costs := make([]float64, len(lines))
	for i, line := range lines {
		costs[i] = line.EffectiveCost().InexactFloat64()
	}
	mean, std := populationStats(costs)
	if std == 0 {
		return nil, nil
	}

	var anomalies []Discrepancy
	for i, cost := range costs {
		z := math.Abs(cost-mean) / std
		if z <= s.cfg.AnomalyScoreThreshold {
			continue
		}
		severity := SeverityMedium
		if z > s.cfg.HighAnomalyScore {
			severity = SeverityHigh
		}
		anomalies = append(anomalies, Discrepancy{
			Kind:      KindAnomaly,
			Severity:  severity,
			LineIndex: lines[i].Index,
			Worker:    lines[i].Name,
			LaborType: lines[i].LaborType,
			Category:  CategoryStatisticalOutlier,
			Score:     round2(z),
			Value:     lines[i].EffectiveCost(),
			Description: fmt.Sprintf("labor cost $%.2f is %.1f standard deviations from the batch mean ($%.2f)",
				cost, z, mean),
		})
	}
	return anomalies, nil
}

// =============================================================================
// SHARED MATH
// =============================================================================

// populationStats returns the mean and population standard deviation.
func populationStats(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return mean, math.Sqrt(sumSq / float64(len(values)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
