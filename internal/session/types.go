package session

// SourceCitation links an extracted value back to the filing it came from.
type SourceCitation struct {
	Concept         string  `json:"concept"`
	Label           string  `json:"label"`
	FilingURL       string  `json:"filing_url"`
	AccessionNumber string  `json:"accession_number"`
	FilingDate      string  `json:"filing_date"`
	FormType        string  `json:"form_type"`
	PeriodEnd       string  `json:"period_end"`
	RawValue        float64 `json:"raw_value"`
	Statement       string  `json:"statement"`
}

// ExtractedValue is one raw line item produced by the upstream extractor.
// Values are absolute currency units, already normalized from the reporting
// scale. Immutable once the session is created; corrections go through the
// edit overlay.
type ExtractedValue struct {
	MetricKey     string          `json:"metric_key"`
	DisplayName   string          `json:"display_name"`
	Value         float64         `json:"value"`
	ValuePrior    float64         `json:"value_prior"`
	Citation      *SourceCitation `json:"citation,omitempty"`
	CitationPrior *SourceCitation `json:"citation_prior,omitempty"`
	Reasoning     string          `json:"reasoning,omitempty"`
	Editable      bool            `json:"editable"`
}

// UnmappedConcept is a source concept the extractor flagged as notable but
// could not map to a canonical key.
type UnmappedConcept struct {
	Concept       string          `json:"concept"`
	Label         string          `json:"label"`
	Value         float64         `json:"value"`
	ValuePrior    float64         `json:"value_prior"`
	Note          string          `json:"note"`
	Citation      *SourceCitation `json:"citation,omitempty"`
	CitationPrior *SourceCitation `json:"citation_prior,omitempty"`
}

// NotFoundMetric is a required canonical key the extractor could not locate.
type NotFoundMetric struct {
	MetricKey   string `json:"metric_key"`
	DisplayName string `json:"display_name"`
	Note        string `json:"note"`
}
