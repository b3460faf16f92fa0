package session

import (
	"encoding/json"
	"math"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spread-cli/internal/schema"
)

// ErrInvalidValue rejects overrides that are not finite numbers. The overlay
// is left untouched when it is returned.
var ErrInvalidValue = eris.New("overlay: value must be a finite number")

// OverlayEntry holds the sparse per-period overrides for one metric key. A
// nil field means "no override", never an implicit zero.
type OverlayEntry struct {
	Value      *float64 `json:"value,omitempty"`
	ValuePrior *float64 `json:"value_prior,omitempty"`
}

func (e OverlayEntry) empty() bool {
	return e.Value == nil && e.ValuePrior == nil
}

// EditOverlay is the session's only mutable state: user corrections layered
// over the immutable raw values. Set and Clear operate on a single field of a
// single entry, so concurrent edits to the paired field are never lost.
type EditOverlay struct {
	mu      sync.RWMutex
	entries map[string]*OverlayEntry
}

// NewEditOverlay returns an empty overlay.
func NewEditOverlay() *EditOverlay {
	return &EditOverlay{entries: make(map[string]*OverlayEntry)}
}

// Set records an override for (key, period). Non-finite values are rejected
// with ErrInvalidValue before the overlay changes.
func (o *EditOverlay) Set(key string, period schema.Period, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrInvalidValue
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	e := o.entries[key]
	if e == nil {
		e = &OverlayEntry{}
		o.entries[key] = e
	}
	if period == schema.PeriodPrior {
		e.ValuePrior = &v
	} else {
		e.Value = &v
	}
	return nil
}

// Clear removes the override for (key, period), leaving the paired field
// untouched. The entry is dropped entirely once both fields are clear.
func (o *EditOverlay) Clear(key string, period schema.Period) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e := o.entries[key]
	if e == nil {
		return
	}
	if period == schema.PeriodPrior {
		e.ValuePrior = nil
	} else {
		e.Value = nil
	}
	if e.empty() {
		delete(o.entries, key)
	}
}

// Get returns the override for (key, period) and whether one is defined.
func (o *EditOverlay) Get(key string, period schema.Period) (float64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e := o.entries[key]
	if e == nil {
		return 0, false
	}
	f := e.Value
	if period == schema.PeriodPrior {
		f = e.ValuePrior
	}
	if f == nil {
		return 0, false
	}
	return *f, true
}

// Has reports whether any field of key is overridden.
func (o *EditOverlay) Has(key string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.entries[key] != nil
}

// Len returns the number of keys with at least one override.
func (o *EditOverlay) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.entries)
}

// Snapshot returns a deep copy of the overlay, decoupled from further edits.
func (o *EditOverlay) Snapshot() map[string]OverlayEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]OverlayEntry, len(o.entries))
	for k, e := range o.entries {
		var c OverlayEntry
		if e.Value != nil {
			v := *e.Value
			c.Value = &v
		}
		if e.ValuePrior != nil {
			v := *e.ValuePrior
			c.ValuePrior = &v
		}
		out[k] = c
	}
	return out
}

// MarshalJSON serializes the overlay as a plain key -> entry object.
func (o *EditOverlay) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Snapshot())
}

// UnmarshalJSON replaces the overlay contents with the decoded entries.
func (o *EditOverlay) UnmarshalJSON(data []byte) error {
	var entries map[string]OverlayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return eris.Wrap(err, "overlay: unmarshal")
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = make(map[string]*OverlayEntry, len(entries))
	for k, e := range entries {
		if e.empty() {
			continue
		}
		c := e
		o.entries[k] = &c
	}
	return nil
}
