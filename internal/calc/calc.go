// Package calc derives metrics, ratios, and verification checks from
// resolved line-item values. Every computation is a pure function of the
// resolver passed in: identical inputs always yield identical outputs, and
// nothing here is cached across invocations.
//
// Missing-input policy, applied uniformly: arithmetic treats a missing line
// item as 0, and every division with a zero denominator yields 0 rather than
// NaN or infinity. Verification is the one place "missing" survives, as a
// skipped check.
package calc

import (
	"github.com/sells-group/spread-cli/internal/schema"
)

// Resolver supplies effective line-item values per (key, period). The second
// return value distinguishes missing from zero.
type Resolver interface {
	Resolve(key string, period schema.Period) (float64, bool)
}

// CalculationStep is one audit-ledger record: the formula applied, the
// spreadsheet-equivalent formula with B_<key> placeholders, the concrete
// resolved inputs, and the result.
type CalculationStep struct {
	Metric       string             `json:"metric"`
	Period       schema.Period      `json:"period"`
	Formula      string             `json:"formula"`
	FormulaExcel string             `json:"formula_excel"`
	Inputs       map[string]float64 `json:"inputs"`
	Result       float64            `json:"result"`
}

// Results bundles one full recomputation.
type Results struct {
	Metrics      *Metrics            `json:"metrics"`
	Ratios       *Ratios             `json:"ratios"`
	Verification *VerificationResult `json:"verification"`
	Steps        []CalculationStep   `json:"calculation_steps"`
}

// Engine runs the resolve -> calculate -> verify pipeline. The zero value is
// ready to use with the default tolerance floor.
type Engine struct {
	// AbsFloor overrides the absolute tolerance floor applied to every
	// verification check. Zero means DefaultAbsFloor.
	AbsFloor float64
}

// Recompute derives all metrics, ratios, and checks from r. Always a full
// recomputation; never incrementally patched.
func (e Engine) Recompute(r Resolver) *Results {
	metrics, metricSteps := ComputeMetrics(r)
	ratios, ratioSteps := ComputeRatios(r, metrics)
	verification := e.Verify(r)

	steps := make([]CalculationStep, 0, len(metricSteps)+len(ratioSteps))
	steps = append(steps, metricSteps...)
	steps = append(steps, ratioSteps...)

	return &Results{
		Metrics:      metrics,
		Ratios:       ratios,
		Verification: verification,
		Steps:        steps,
	}
}

// safeDiv divides num by den, returning 0 when den is 0.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// env evaluates one period's formula table. Derived values accumulate so
// later definitions can reference earlier results by key; derived values
// shadow raw line items of the same name.
type env struct {
	r       Resolver
	period  schema.Period
	derived map[string]float64
}

func newEnv(r Resolver, period schema.Period) *env {
	return &env{r: r, period: period, derived: make(map[string]float64)}
}

// get returns the derived value for key if one was computed, else the
// resolved raw value, else 0.
func (e *env) get(key string) float64 {
	if v, ok := e.derived[key]; ok {
		return v
	}
	v, _ := e.r.Resolve(key, e.period)
	return v
}

// raw returns the resolved raw value for key, bypassing derived results.
func (e *env) raw(key string) (float64, bool) {
	return e.r.Resolve(key, e.period)
}

// inputs snapshots the values of keys as seen by get.
func (e *env) inputs(keys []string) map[string]float64 {
	m := make(map[string]float64, len(keys))
	for _, k := range keys {
		m[k] = e.get(k)
	}
	return m
}
