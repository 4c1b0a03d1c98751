/*
catalog.go - Read-through cache over the MSA rate schedule

PURPOSE:
  Resolves standard rates, overtime thresholds, and the supervisor ratio
  limit for the duration of ONE reconciliation request. Each lookup hits
  the external rate store at most once per cache key; repeated lines in
  the same invoice resolve from memory.

LOOKUP STRATEGY:
  Rate(type, location):
    1. Cache key "TYPE:location"
    2. Store lookup rate_id "TYPE#location" at the configured
       effective date
    3. On miss with a non-default location, fall back to "default"
    4. Still missing: rate unknown; the caller skips the variance
       check and emits a missing_rate note

  OvertimeThreshold(type):
    "TYPE#overtime_rules", then "default#overtime_rules", then the
    configured constant.

  CrewPerSupervisor():
    "SU#ratio_rules", then the configured constant.

SCOPE:
  A catalog lives for one reconciliation request. There is no shared
  mutable state across requests, so no locking is needed; concurrent
  reconciliations each build their own catalog.

SEE ALSO:
  - store.go: RateStore interface
  - rules.go, anomaly.go: Consumers
*/
package recon

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateCatalog is a per-request read-through cache over a RateStore.
// Not safe for concurrent use; each request gets its own instance.
type RateCatalog struct {
	store RateStore
	cfg   Config
	log   *zap.Logger

	// cache maps "TYPE:location" to the resolved record; a present nil
	// value means the store was consulted and has no record.
	cache map[string]*RateRecord
}

// NewRateCatalog creates a catalog scoped to one reconciliation request.
func NewRateCatalog(store RateStore, cfg Config, log *zap.Logger) *RateCatalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &RateCatalog{
		store: store,
		cfg:   cfg,
		log:   log,
		cache: make(map[string]*RateRecord),
	}
}

// lookup resolves one (type, location) pair through the cache.
func (c *RateCatalog) lookup(ctx context.Context, laborType LaborType, location string) (*RateRecord, error) {
	key := string(laborType) + ":" + location
	if rec, seen := c.cache[key]; seen {
		return rec, nil
	}

	rateID := string(laborType) + "#" + location
	rec, err := c.store.GetRate(ctx, rateID, c.cfg.EffectiveDate)
	if err != nil {
		return nil, &RateStoreError{RateID: rateID, Err: err}
	}
	c.cache[key] = rec
	return rec, nil
}

// Rate resolves the MSA standard rate for a labor type and location.
// ok is false when the schedule has no entry even after the default-location
// fallback; the caller treats that as "rate unknown".
func (c *RateCatalog) Rate(ctx context.Context, laborType LaborType, location string) (decimal.Decimal, bool, error) {
	if strings.TrimSpace(location) == "" {
		location = DefaultLocation
	}

	rec, err := c.lookup(ctx, laborType, location)
	if err != nil {
		return decimal.Zero, false, err
	}
	if rec == nil && location != DefaultLocation {
		rec, err = c.lookup(ctx, laborType, DefaultLocation)
		if err != nil {
			return decimal.Zero, false, err
		}
	}
	if rec == nil {
		c.log.Debug("no MSA rate on schedule",
			zap.String("labor_type", string(laborType)),
			zap.String("location", location))
		return decimal.Zero, false, nil
	}
	return rec.StandardRate, true, nil
}

// OvertimeThreshold resolves the weekly overtime threshold for a labor type,
// falling back to the schedule-wide default row and then the configured
// constant.
func (c *RateCatalog) OvertimeThreshold(ctx context.Context, laborType LaborType) (decimal.Decimal, error) {
	for _, lt := range []LaborType{laborType, LaborType(DefaultLocation)} {
		rec, err := c.lookup(ctx, lt, "overtime_rules")
		if err != nil {
			return decimal.Zero, err
		}
		if rec != nil && rec.WeeklyThreshold != nil {
			return *rec.WeeklyThreshold, nil
		}
	}
	return c.cfg.OvertimeThresholdHours, nil
}

// CrewPerSupervisor resolves the supervisor ratio limit (base-worker hours
// per supervisor hour), falling back to the configured constant.
func (c *RateCatalog) CrewPerSupervisor(ctx context.Context) (decimal.Decimal, error) {
	rec, err := c.lookup(ctx, LaborSupervisor, "ratio_rules")
	if err != nil {
		return decimal.Zero, err
	}
	if rec != nil && rec.MaxRatio != nil {
		return *rec.MaxRatio, nil
	}
	return c.cfg.CrewPerSupervisor, nil
}
