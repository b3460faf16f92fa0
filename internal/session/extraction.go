package session

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/spread-cli/internal/schema"
)

// ExtractionResult is the document the upstream extractor hands over: raw
// values keyed by canonical metric key, plus the concepts it could not map
// and the required keys it could not find. This package treats extraction as
// an opaque producer; how a concept was mapped is not its concern.
type ExtractionResult struct {
	Ticker             string                    `json:"ticker"`
	CompanyName        string                    `json:"company_name" validate:"required"`
	CIK                string                    `json:"cik"`
	FiscalYearEnd      string                    `json:"fiscal_year_end"`
	FiscalYearEndPrior string                    `json:"fiscal_year_end_prior"`
	SchemaVersion      string                    `json:"schema_version"`
	RawValues          map[string]ExtractedValue `json:"raw_values" validate:"required,min=1"`
	Unmapped           []UnmappedConcept         `json:"unmapped,omitempty"`
	NotFound           []NotFoundMetric          `json:"not_found,omitempty"`
	ExtractorModel     string                    `json:"extractor_model,omitempty"`
	Notes              []string                  `json:"notes,omitempty"`
	Warnings           []string                  `json:"warnings,omitempty"`
}

// FromExtraction builds a fresh session from an extraction result. Raw values
// with keys outside the canonical schema are rejected rather than silently
// carried: a key that means nothing downstream would only corrupt resolution.
func FromExtraction(res ExtractionResult) (*Session, error) {
	reg := schema.Default()
	for key := range res.RawValues {
		if !reg.Has(key) {
			return nil, eris.Wrapf(ErrUnknownMetric, "%q", key)
		}
	}

	s := New(res.Ticker, res.CompanyName, res.CIK)
	s.FiscalYearEnd = res.FiscalYearEnd
	s.FiscalYearEndPrior = res.FiscalYearEndPrior
	if res.SchemaVersion != "" {
		s.SchemaVersion = res.SchemaVersion
	}
	s.Unmapped = res.Unmapped
	s.NotFound = res.NotFound
	s.ExtractorModel = res.ExtractorModel
	s.Notes = res.Notes
	s.Warnings = res.Warnings

	for key, ev := range res.RawValues {
		ev.MetricKey = key
		if ev.DisplayName == "" {
			ev.DisplayName = schema.DisplayName(key)
		}
		s.Raw[key] = ev
	}
	return s, nil
}
