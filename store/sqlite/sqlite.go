/*
Package sqlite provides a SQLite-backed implementation of the rate schedule.

PURPOSE:
  Implements recon.RateCatalogStore using SQLite. In production the same
  patterns apply to PostgreSQL or DynamoDB - only dialect differences.

KEY TABLE:
  msa_rates: One row per (rate_id, effective_date). rate_id follows the
  upstream "{TYPE}#{LOCATION}" convention. Policy rows reuse the same
  table: overtime thresholds live at location "overtime_rules" and the
  supervisor ratio limit at "ratio_rules", mirroring the seeded schedule.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

SEEDING:
  Seed() loads the contracted MSA schedule (standard rates per labor type
  and location, the default overtime threshold, and the SU:RS ratio rule)
  when the table is empty. Idempotent.

USAGE:
  store, err := sqlite.New("./data/rates.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - recon/store.go: Interface definitions
  - recon/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/auditworks/recon-engine/recon"
)

// Store implements recon.RateCatalogStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- MSA rate schedule. rate_id is "{TYPE}#{LOCATION}".
	CREATE TABLE IF NOT EXISTS msa_rates (
		rate_id TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		labor_type TEXT NOT NULL,
		location TEXT NOT NULL,
		standard_rate TEXT NOT NULL,
		weekly_threshold TEXT,
		max_ratio TEXT,
		description TEXT,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		PRIMARY KEY (rate_id, effective_date)
	);

	CREATE INDEX IF NOT EXISTS idx_msa_rates_type_location
		ON msa_rates(labor_type, location);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RATE CATALOG STORE
// =============================================================================

// GetRate returns the record for the given rate_id and effective date, or
// (nil, nil) when no such record exists.
func (s *Store) GetRate(ctx context.Context, rateID, effectiveDate string) (*recon.RateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT labor_type, location, effective_date, standard_rate,
		       weekly_threshold, max_ratio, COALESCE(description, '')
		FROM msa_rates
		WHERE rate_id = ? AND effective_date = ?`,
		rateID, effectiveDate)

	rec, err := scanRate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rate %s: %w", rateID, err)
	}
	return rec, nil
}

// PutRate inserts or replaces a schedule record.
func (s *Store) PutRate(ctx context.Context, rec recon.RateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var threshold, ratio any
	if rec.WeeklyThreshold != nil {
		threshold = rec.WeeklyThreshold.String()
	}
	if rec.MaxRatio != nil {
		ratio = rec.MaxRatio.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO msa_rates
			(rate_id, effective_date, labor_type, location, standard_rate,
			 weekly_threshold, max_ratio, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RateID(), rec.EffectiveDate, string(rec.LaborType), rec.Location,
		rec.StandardRate.String(), threshold, ratio, rec.Description)
	if err != nil {
		return fmt.Errorf("failed to store rate %s: %w", rec.RateID(), err)
	}
	return nil
}

// ListRates returns every record at the given effective date, ordered by
// rate ID.
func (s *Store) ListRates(ctx context.Context, effectiveDate string) ([]recon.RateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT labor_type, location, effective_date, standard_rate,
		       weekly_threshold, max_ratio, COALESCE(description, '')
		FROM msa_rates
		WHERE effective_date = ?
		ORDER BY rate_id`,
		effectiveDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	defer rows.Close()

	var out []recon.RateRecord
	for rows.Next() {
		rec, err := scanRate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRate(row scanner) (*recon.RateRecord, error) {
	var (
		rec          recon.RateRecord
		laborType    string
		standardRate string
		weeklyThresh sql.NullString
		maxRatio     sql.NullString
	)
	if err := row.Scan(&laborType, &rec.Location, &rec.EffectiveDate,
		&standardRate, &weeklyThresh, &maxRatio, &rec.Description); err != nil {
		return nil, err
	}

	rec.LaborType = recon.LaborType(laborType)
	rate, err := decimal.NewFromString(standardRate)
	if err != nil {
		return nil, fmt.Errorf("malformed standard_rate %q: %w", standardRate, err)
	}
	rec.StandardRate = rate

	if weeklyThresh.Valid {
		v, err := decimal.NewFromString(weeklyThresh.String)
		if err != nil {
			return nil, fmt.Errorf("malformed weekly_threshold %q: %w", weeklyThresh.String, err)
		}
		rec.WeeklyThreshold = &v
	}
	if maxRatio.Valid {
		v, err := decimal.NewFromString(maxRatio.String)
		if err != nil {
			return nil, fmt.Errorf("malformed max_ratio %q: %w", maxRatio.String, err)
		}
		rec.MaxRatio = &v
	}
	return &rec, nil
}

// =============================================================================
// SEEDING
// =============================================================================

// Seed loads the contracted MSA rate schedule at the given effective date if
// the table is empty. Idempotent: an already-populated schedule is left
// untouched.
func (s *Store) Seed(ctx context.Context, effectiveDate string) error {
	existing, err := s.ListRates(ctx, effectiveDate)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, rec := range DefaultSchedule(effectiveDate) {
		if err := s.PutRate(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// DefaultSchedule is the contracted MSA rate schedule.
func DefaultSchedule(effectiveDate string) []recon.RateRecord {
	rate := func(lt recon.LaborType, location string, std float64, desc string) recon.RateRecord {
		return recon.RateRecord{
			LaborType:     lt,
			Location:      location,
			EffectiveDate: effectiveDate,
			StandardRate:  decimal.NewFromFloat(std),
			Description:   desc,
		}
	}
	forty := decimal.NewFromInt(40)
	crew := decimal.NewFromInt(6)

	schedule := []recon.RateRecord{
		rate(recon.LaborRegularSkilled, "default", 70.00, "Regular skilled labor"),
		rate(recon.LaborUnskilled, "default", 45.00, "Unskilled labor"),
		rate(recon.LaborSpecialtySkilled, "default", 55.00, "Specialty skilled labor"),
		rate(recon.LaborSupervisor, "default", 85.00, "Supervisor"),
		rate(recon.LaborEngineer, "default", 95.00, "Engineer"),

		rate(recon.LaborRegularSkilled, "high_cost", 85.00, "Regular skilled labor - high cost area"),
		rate(recon.LaborSupervisor, "high_cost", 105.00, "Supervisor - high cost area"),

		rate(recon.LaborRegularSkilled, "emergency", 105.00, "Regular skilled labor - emergency/holiday (1.5x)"),
	}

	overtime := rate(recon.LaborType("default"), "overtime_rules", 40.0, "Default weekly overtime threshold")
	overtime.WeeklyThreshold = &forty
	schedule = append(schedule, overtime)

	ratio := rate(recon.LaborSupervisor, "ratio_rules", 0, "Maximum supervisor-to-RS ratio (1:6)")
	ratio.MaxRatio = &crew
	schedule = append(schedule, ratio)

	return schedule
}
