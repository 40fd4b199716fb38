package instrument

import (
	"fmt"

	"invest-watcher/internal/config"
)

// Instrument is the static definition of one tracked asset. The full set is
// configuration, immutable for the process lifetime.
type Instrument struct {
	Key      string
	Ticker   string
	Name     string
	Currency string
	Unit     string
	// Convert marks instruments whose native quote must be multiplied by the
	// FX rate to reach the reporting currency.
	Convert bool
	// MinorUnit marks instruments quoted in a minor unit (e.g. pence) that
	// need the fixed 1/100 rescale before anything else.
	MinorUnit bool
}

// Registry holds the configured instruments in declaration order, which is
// also the iteration order of every pass and of the daily digest.
type Registry struct {
	ordered []Instrument
	byKey   map[string]Instrument
}

// NewRegistry builds a registry from configuration.
func NewRegistry(defs []config.InstrumentConfig) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("instrument registry cannot be empty")
	}

	reg := &Registry{
		ordered: make([]Instrument, 0, len(defs)),
		byKey:   make(map[string]Instrument, len(defs)),
	}
	for _, def := range defs {
		if _, dup := reg.byKey[def.Key]; dup {
			return nil, fmt.Errorf("duplicate instrument key %q", def.Key)
		}
		inst := Instrument{
			Key:       def.Key,
			Ticker:    def.Ticker,
			Name:      def.Name,
			Currency:  def.Currency,
			Unit:      def.Unit,
			Convert:   def.Convert,
			MinorUnit: def.MinorUnit,
		}
		if inst.Name == "" {
			inst.Name = inst.Key
		}
		reg.ordered = append(reg.ordered, inst)
		reg.byKey[inst.Key] = inst
	}
	return reg, nil
}

// All returns the instruments in configuration order.
func (r *Registry) All() []Instrument {
	out := make([]Instrument, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Lookup resolves an instrument by key.
func (r *Registry) Lookup(key string) (Instrument, bool) {
	inst, ok := r.byKey[key]
	return inst, ok
}

// Len reports the number of registered instruments.
func (r *Registry) Len() int {
	return len(r.ordered)
}
