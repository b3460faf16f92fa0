// Package session holds the review state for one extracted filing pair: the
// immutable raw values produced by the extractor, the mutable edit overlay,
// and the resolver that combines the two into effective values.
package session

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/spread-cli/internal/schema"
)

var (
	// ErrUnknownMetric rejects edits to keys outside the canonical schema.
	ErrUnknownMetric = eris.New("session: unknown metric key")
	// ErrNotEditable rejects edits to line items the extractor locked.
	ErrNotEditable = eris.New("session: metric is not editable")
)

// Session is one extraction review session. Raw is append-only at creation
// and never mutated afterwards; Overlay is the only mutable state. Everything
// downstream is a pure recomputation over (Raw, Overlay).
type Session struct {
	ID                 string                    `json:"session_id"`
	Ticker             string                    `json:"ticker"`
	CompanyName        string                    `json:"company_name"`
	CIK                string                    `json:"cik"`
	FiscalYearEnd      string                    `json:"fiscal_year_end"`
	FiscalYearEndPrior string                    `json:"fiscal_year_end_prior"`
	SchemaVersion      string                    `json:"schema_version"`
	Raw                map[string]ExtractedValue `json:"raw_values"`
	Unmapped           []UnmappedConcept         `json:"unmapped,omitempty"`
	NotFound           []NotFoundMetric          `json:"not_found,omitempty"`
	Overlay            *EditOverlay              `json:"overlay"`
	Approved           bool                      `json:"approved"`
	ApprovedAt         *time.Time                `json:"approved_at,omitempty"`
	ExtractorModel     string                    `json:"extractor_model,omitempty"`
	Notes              []string                  `json:"notes,omitempty"`
	Warnings           []string                  `json:"warnings,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
}

// New creates an empty session with a generated id.
func New(ticker, companyName, cik string) *Session {
	return &Session{
		ID:            uuid.New().String(),
		Ticker:        ticker,
		CompanyName:   companyName,
		CIK:           cik,
		SchemaVersion: schema.Version,
		Raw:           make(map[string]ExtractedValue),
		Overlay:       NewEditOverlay(),
		CreatedAt:     time.Now().UTC(),
	}
}

// RawValue returns the extracted value for (key, period) and whether the
// extractor produced one.
func (s *Session) RawValue(key string, period schema.Period) (float64, bool) {
	ev, ok := s.Raw[key]
	if !ok {
		return 0, false
	}
	if period == schema.PeriodPrior {
		return ev.ValuePrior, true
	}
	return ev.Value, true
}

// Resolve returns the effective value for (key, period): the overlay override
// if one is defined, else the raw value, else (0, false) for missing. Total
// over any key; it never errors.
func (s *Session) Resolve(key string, period schema.Period) (float64, bool) {
	if v, ok := s.Overlay.Get(key, period); ok {
		return v, true
	}
	return s.RawValue(key, period)
}

// ResolveOrZero is Resolve with the documented missing-input policy for
// arithmetic: missing collapses to 0.
func (s *Session) ResolveOrZero(key string, period schema.Period) float64 {
	v, _ := s.Resolve(key, period)
	return v
}

// IsEdited reports whether (key, period) carries an override that differs
// from an existing raw value. Overrides without a raw counterpart do not
// count as edits.
func (s *Session) IsEdited(key string, period schema.Period) bool {
	ov, ok := s.Overlay.Get(key, period)
	if !ok {
		return false
	}
	raw, ok := s.RawValue(key, period)
	if !ok {
		return false
	}
	return ov != raw
}

// Edit is one correction request against the overlay. Value fields set an
// override; Clear fields remove one. A nil value with no clear flag leaves
// that period untouched.
type Edit struct {
	MetricKey       string   `json:"metric_key" validate:"required"`
	Value           *float64 `json:"value,omitempty"`
	ValuePrior      *float64 `json:"value_prior,omitempty"`
	ClearValue      bool     `json:"clear_value,omitempty"`
	ClearValuePrior bool     `json:"clear_value_prior,omitempty"`
}

// ApplyEdit validates and applies one edit to the overlay. Rejected edits
// leave the overlay unchanged: unknown keys, locked line items, and
// non-finite values all fail before any field is touched.
func (s *Session) ApplyEdit(e Edit) error {
	if !schema.Default().Has(e.MetricKey) {
		return eris.Wrapf(ErrUnknownMetric, "%q", e.MetricKey)
	}
	if ev, ok := s.Raw[e.MetricKey]; ok && !ev.Editable {
		return eris.Wrapf(ErrNotEditable, "%q", e.MetricKey)
	}
	for _, v := range []*float64{e.Value, e.ValuePrior} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return eris.Wrapf(ErrInvalidValue, "%q", e.MetricKey)
		}
	}
	if e.Value != nil {
		if err := s.Overlay.Set(e.MetricKey, schema.PeriodCurrent, *e.Value); err != nil {
			return err
		}
	}
	if e.ValuePrior != nil {
		if err := s.Overlay.Set(e.MetricKey, schema.PeriodPrior, *e.ValuePrior); err != nil {
			return err
		}
	}
	if e.ClearValue {
		s.Overlay.Clear(e.MetricKey, schema.PeriodCurrent)
	}
	if e.ClearValuePrior {
		s.Overlay.Clear(e.MetricKey, schema.PeriodPrior)
	}
	return nil
}

// ApplyEdits applies edits in order, stopping at the first invalid one.
func (s *Session) ApplyEdits(edits []Edit) error {
	for _, e := range edits {
		if err := s.ApplyEdit(e); err != nil {
			return err
		}
	}
	return nil
}

// Approve marks the session approved and freezes the current overlay into a
// snapshot for downstream export.
func (s *Session) Approve(now time.Time) map[string]OverlayEntry {
	now = now.UTC()
	s.Approved = true
	s.ApprovedAt = &now
	return s.Overlay.Snapshot()
}
