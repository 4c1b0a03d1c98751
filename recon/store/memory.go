// Package store provides RateCatalogStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/auditworks/recon-engine/recon"
)

// =============================================================================
// MEMORY STORE - In-memory rate schedule (for testing/dev)
// =============================================================================

type Memory struct {
	mu    sync.RWMutex
	rates map[key]recon.RateRecord
}

type key struct {
	RateID        string
	EffectiveDate string
}

func NewMemory() *Memory {
	return &Memory{rates: make(map[key]recon.RateRecord)}
}

// GetRate returns (nil, nil) when no record exists; that is a schedule gap,
// not a store failure.
func (m *Memory) GetRate(_ context.Context, rateID, effectiveDate string) (*recon.RateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.rates[key{RateID: rateID, EffectiveDate: effectiveDate}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// PutRate inserts or replaces a schedule record.
func (m *Memory) PutRate(_ context.Context, rec recon.RateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rates[key{RateID: rec.RateID(), EffectiveDate: rec.EffectiveDate}] = rec
	return nil
}

// ListRates returns every record at the given effective date, ordered by
// rate ID for stable output.
func (m *Memory) ListRates(_ context.Context, effectiveDate string) ([]recon.RateRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []recon.RateRecord
	for k, rec := range m.rates {
		if k.EffectiveDate == effectiveDate {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RateID() < out[j].RateID() })
	return out, nil
}
