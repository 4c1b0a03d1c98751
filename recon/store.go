/*
store.go - Collaborator interfaces for the reconciliation engine

PURPOSE:
  Defines the two external collaborators the engine depends on: the MSA
  rate schedule store and the remote anomaly scorer. The engine accepts
  these interfaces; concrete implementations live elsewhere
  (store/sqlite, recon/store, scoring).

RATE STORE CONTRACT:
  Records are keyed by rate_id "{TYPE}#{LOCATION}" plus an effective date,
  mirroring the upstream schedule table. A missing record is (nil, nil),
  not an error; errors mean the store itself failed.

SCORER CONTRACT:
  Score receives one normalized feature vector per labor line
  ([hours, overtime_hours, unit_rate, total_cost]) and returns one score
  per line. Failures must wrap the scorer sentinels in errors.go so the
  anomaly chain can distinguish transient from permanent faults.

SEE ALSO:
  - recon/store/memory.go: In-memory implementation for tests/dev
  - store/sqlite/sqlite.go: SQLite-backed schedule
  - scoring/http.go: HTTP scoring collaborator
*/
package recon

import "context"

// RateStore is the read contract against the MSA rate schedule.
type RateStore interface {
	// GetRate returns the record for rate_id "{TYPE}#{LOCATION}" at the
	// given effective date, or (nil, nil) when no such record exists.
	GetRate(ctx context.Context, rateID, effectiveDate string) (*RateRecord, error)
}

// RateCatalogStore extends RateStore with schedule management, used by the
// API layer and seeding. The engine itself only needs RateStore.
type RateCatalogStore interface {
	RateStore

	// PutRate inserts or replaces a schedule record.
	PutRate(ctx context.Context, rec RateRecord) error

	// ListRates returns every record at the given effective date.
	ListRates(ctx context.Context, effectiveDate string) ([]RateRecord, error)
}

// Scorer is the remote anomaly scoring collaborator.
type Scorer interface {
	// Score returns one anomaly score per feature vector, in order.
	Score(ctx context.Context, features [][]float64) ([]float64, error)
}
