/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Monetary and
  hour quantities are decimal internally but serialize as plain JSON
  numbers here, which is what report consumers expect.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

UNTRUSTED NUMERICS:
  Extraction output sometimes carries numbers as strings ("77.0"). The
  flexNumber type accepts both forms; a line whose numerics cannot be
  parsed at all is skipped by the handler, not fatal to the batch.

VALIDATION:
  Validation is done in the engine, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - recon/types.go: Domain model these map onto
*/
package api

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/auditworks/recon-engine/recon"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// flexNumber is a decimal that unmarshals from a JSON number, a numeric
// string, null, or an empty string.
type flexNumber struct {
	decimal.Decimal
}

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) || bytes.Equal(data, []byte(`""`)) {
		f.Decimal = decimal.Zero
		return nil
	}
	data = bytes.Trim(data, `"`)
	d, err := decimal.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("not a numeric value: %q", data)
	}
	f.Decimal = d
	return nil
}

// LaborLineRequest is one extracted labor line as submitted by the
// extraction collaborator.
type LaborLineRequest struct {
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Location  string     `json:"location"`
	UnitPrice flexNumber `json:"unit_price"`
	Hours     flexNumber `json:"total_hours"`
	TotalCost flexNumber `json:"total_cost"`
	Week      string     `json:"week"`
	Period    string     `json:"period"`
}

// toLine converts the request line into the domain model. index is the
// line's position in the submitted payload; all discrepancy references use
// it. Week and period are interchangeable grouping keys; period wins when
// both are present.
func (r LaborLineRequest) toLine(index int) recon.LaborLineItem {
	period := r.Period
	if period == "" {
		period = r.Week
	}
	return recon.LaborLineItem{
		Index:     index,
		Name:      r.Name,
		LaborType: recon.LaborType(r.Type),
		Location:  r.Location,
		UnitRate:  r.UnitPrice.Decimal,
		Hours:     r.Hours.Decimal,
		TotalCost: r.TotalCost.Decimal,
		Period:    period,
	}
}

// UpsertRateRequest creates or replaces one MSA schedule record.
type UpsertRateRequest struct {
	StandardRate    flexNumber  `json:"standard_rate"`
	WeeklyThreshold *flexNumber `json:"weekly_threshold,omitempty"`
	MaxRatio        *flexNumber `json:"max_ratio,omitempty"`
	EffectiveDate   string      `json:"effective_date,omitempty"`
	Description     string      `json:"description,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// RateVarianceDTO is one flagged rate overcharge.
type RateVarianceDTO struct {
	Worker             string  `json:"worker"`
	LaborType          string  `json:"labor_type"`
	LineIndex          int     `json:"line_index"`
	BilledRate         float64 `json:"billed_rate"`
	MSARate            float64 `json:"msa_rate"`
	VariancePercentage float64 `json:"variance_percentage"`
	VarianceAmount     float64 `json:"variance_amount"`
	Hours              float64 `json:"hours"`
	Severity           string  `json:"severity"`
	Description        string  `json:"description"`
}

// OvertimeDTO is one flagged overtime violation.
type OvertimeDTO struct {
	Worker        string  `json:"worker"`
	LaborType     string  `json:"labor_type"`
	LineIndex     int     `json:"line_index"`
	TotalHours    float64 `json:"total_hours"`
	OvertimeHours float64 `json:"overtime_hours"`
	Threshold     float64 `json:"threshold"`
	Severity      string  `json:"severity"`
	Description   string  `json:"description"`
}

// DuplicateDTO is one repeated billing line, referencing its first
// occurrence.
type DuplicateDTO struct {
	Worker      string  `json:"worker"`
	LaborType   string  `json:"labor_type"`
	LineIndex   int     `json:"line_index"`
	FirstIndex  int     `json:"first_index"`
	Hours       float64 `json:"hours"`
	Rate        float64 `json:"rate"`
	Period      string  `json:"period,omitempty"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
}

// RatioDTO is the batch-level supervisor ratio flag.
type RatioDTO struct {
	SupervisorHours float64 `json:"supervisor_hours"`
	BaseHours       float64 `json:"base_hours"`
	Ratio           float64 `json:"ratio"`
	MaxRatio        float64 `json:"max_ratio"`
	Severity        string  `json:"severity"`
	Description     string  `json:"description"`
}

// ClassificationDTO is one line with an unknown labor type.
type ClassificationDTO struct {
	Worker      string `json:"worker"`
	LaborType   string `json:"labor_type"`
	LineIndex   int    `json:"line_index"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// AnomalyDTO is one anomaly flag from the detection chain.
type AnomalyDTO struct {
	Worker      string  `json:"worker"`
	LaborType   string  `json:"labor_type"`
	LineIndex   int     `json:"line_index"`
	Category    string  `json:"category"`
	Score       float64 `json:"score,omitempty"`
	Value       float64 `json:"value"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
}

// MissingRateDTO notes a line with no schedule entry to audit against.
type MissingRateDTO struct {
	Worker    string `json:"worker"`
	LaborType string `json:"labor_type"`
	Location  string `json:"location"`
	LineIndex int    `json:"line_index"`
}

// SummaryDTO carries the per-kind discrepancy counts.
type SummaryDTO struct {
	TotalDiscrepancies   int `json:"total_discrepancies"`
	RateVariances        int `json:"rate_variances"`
	OvertimeViolations   int `json:"overtime_violations"`
	Duplicates           int `json:"duplicates"`
	RatioFlags           int `json:"ratio_flags"`
	ClassificationErrors int `json:"classification_errors"`
	Anomalies            int `json:"anomalies"`
}

// ValidationDTO reports sanitization findings for the submitted batch.
type ValidationDTO struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ReconcileResponse is the full reconciliation output object.
type ReconcileResponse struct {
	ID                   string              `json:"reconciliation_id"`
	Timestamp            string              `json:"timestamp"`
	RateVariances        []RateVarianceDTO   `json:"rate_variances"`
	OvertimeViolations   []OvertimeDTO       `json:"overtime_violations"`
	Anomalies            []AnomalyDTO        `json:"anomalies"`
	Duplicates           []DuplicateDTO      `json:"duplicates"`
	RatioFlags           []RatioDTO          `json:"ratio_flags"`
	ClassificationErrors []ClassificationDTO `json:"classification_errors"`
	MissingRates         []MissingRateDTO    `json:"missing_rates"`
	TotalSavings         float64             `json:"total_savings"`
	Summary              SummaryDTO          `json:"summary"`
	Validation           ValidationDTO       `json:"validation"`
}

// RateDTO is one MSA schedule record in API responses.
type RateDTO struct {
	RateID          string   `json:"rate_id"`
	LaborType       string   `json:"labor_type"`
	Location        string   `json:"location"`
	EffectiveDate   string   `json:"effective_date"`
	StandardRate    float64  `json:"standard_rate"`
	WeeklyThreshold *float64 `json:"weekly_threshold,omitempty"`
	MaxRatio        *float64 `json:"max_ratio,omitempty"`
	Description     string   `json:"description,omitempty"`
}

// ErrorResponse is the error payload for non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

// newReconcileResponse groups the flat discrepancy list per kind. Lists are
// always present (empty, not null) so consumers can index unconditionally.
func newReconcileResponse(result *recon.ReconciliationResult) ReconcileResponse {
	resp := ReconcileResponse{
		ID:                   result.ID,
		Timestamp:            result.Timestamp.Format(time.RFC3339),
		RateVariances:        []RateVarianceDTO{},
		OvertimeViolations:   []OvertimeDTO{},
		Anomalies:            []AnomalyDTO{},
		Duplicates:           []DuplicateDTO{},
		RatioFlags:           []RatioDTO{},
		ClassificationErrors: []ClassificationDTO{},
		MissingRates:         []MissingRateDTO{},
		TotalSavings:         result.TotalSavings.InexactFloat64(),
		Summary: SummaryDTO{
			TotalDiscrepancies:   result.Summary.TotalDiscrepancies,
			RateVariances:        result.Summary.RateVariances,
			OvertimeViolations:   result.Summary.OvertimeViolations,
			Duplicates:           result.Summary.Duplicates,
			RatioFlags:           result.Summary.RatioFlags,
			ClassificationErrors: result.Summary.ClassificationErrors,
			Anomalies:            result.Summary.Anomalies,
		},
		Validation: ValidationDTO{
			Valid:    result.Validation.Valid,
			Errors:   emptyIfNil(result.Validation.Errors),
			Warnings: emptyIfNil(result.Validation.Warnings),
		},
	}

	for _, d := range result.Discrepancies {
		switch d.Kind {
		case recon.KindRateVariance:
			resp.RateVariances = append(resp.RateVariances, RateVarianceDTO{
				Worker:             d.Worker,
				LaborType:          string(d.LaborType),
				LineIndex:          d.LineIndex,
				BilledRate:         d.BilledRate.InexactFloat64(),
				MSARate:            d.MSARate.InexactFloat64(),
				VariancePercentage: d.VariancePct,
				VarianceAmount:     d.VarianceAmount.InexactFloat64(),
				Hours:              d.Hours.InexactFloat64(),
				Severity:           string(d.Severity),
				Description:        d.Description,
			})
		case recon.KindOvertime:
			resp.OvertimeViolations = append(resp.OvertimeViolations, OvertimeDTO{
				Worker:        d.Worker,
				LaborType:     string(d.LaborType),
				LineIndex:     d.LineIndex,
				TotalHours:    d.Hours.InexactFloat64(),
				OvertimeHours: d.OvertimeHours.InexactFloat64(),
				Threshold:     d.Threshold.InexactFloat64(),
				Severity:      string(d.Severity),
				Description:   d.Description,
			})
		case recon.KindDuplicate:
			resp.Duplicates = append(resp.Duplicates, DuplicateDTO{
				Worker:      d.Worker,
				LaborType:   string(d.LaborType),
				LineIndex:   d.LineIndex,
				FirstIndex:  d.FirstIndex,
				Hours:       d.Hours.InexactFloat64(),
				Rate:        d.Rate.InexactFloat64(),
				Period:      d.Period,
				Severity:    string(d.Severity),
				Description: d.Description,
			})
		case recon.KindRatio:
			resp.RatioFlags = append(resp.RatioFlags, RatioDTO{
				SupervisorHours: d.SupervisorHours.InexactFloat64(),
				BaseHours:       d.BaseHours.InexactFloat64(),
				Ratio:           d.Ratio,
				MaxRatio:        d.MaxRatio,
				Severity:        string(d.Severity),
				Description:     d.Description,
			})
		case recon.KindClassification:
			resp.ClassificationErrors = append(resp.ClassificationErrors, ClassificationDTO{
				Worker:      d.Worker,
				LaborType:   string(d.LaborType),
				LineIndex:   d.LineIndex,
				Severity:    string(d.Severity),
				Description: d.Description,
			})
		case recon.KindAnomaly:
			resp.Anomalies = append(resp.Anomalies, AnomalyDTO{
				Worker:      d.Worker,
				LaborType:   string(d.LaborType),
				LineIndex:   d.LineIndex,
				Category:    d.Category,
				Score:       d.Score,
				Value:       d.Value.InexactFloat64(),
				Severity:    string(d.Severity),
				Description: d.Description,
			})
		}
	}

	for _, m := range result.MissingRates {
		resp.MissingRates = append(resp.MissingRates, MissingRateDTO{
			Worker:    m.Worker,
			LaborType: string(m.LaborType),
			Location:  m.Location,
			LineIndex: m.LineIndex,
		})
	}

	return resp
}

func newRateDTO(rec recon.RateRecord) RateDTO {
	dto := RateDTO{
		RateID:        rec.RateID(),
		LaborType:     string(rec.LaborType),
		Location:      rec.Location,
		EffectiveDate: rec.EffectiveDate,
		StandardRate:  rec.StandardRate.InexactFloat64(),
		Description:   rec.Description,
	}
	if rec.WeeklyThreshold != nil {
		v := rec.WeeklyThreshold.InexactFloat64()
		dto.WeeklyThreshold = &v
	}
	if rec.MaxRatio != nil {
		v := rec.MaxRatio.InexactFloat64()
		dto.MaxRatio = &v
	}
	return dto
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
