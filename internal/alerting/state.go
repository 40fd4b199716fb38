package alerting

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invest-watcher/internal/history"
	"invest-watcher/internal/storage"
)

// Kind names one alert variety. Each kind fires at most once per
// (instrument, calendar day).
type Kind string

const (
	KindSpike      Kind = "spike"
	KindDip        Kind = "dip"
	KindPriceAbove Kind = "price_above"
	KindPriceBelow Kind = "price_below"
)

// FiredAlert is one persisted (instrument, kind) firing within a day.
type FiredAlert struct {
	Instrument string `json:"instrument"`
	Kind       Kind   `json:"kind"`
}

// DayState holds the intraday references and fired set for one calendar day.
type DayState struct {
	Refs  map[string]decimal.Decimal `json:"refs,omitempty"`
	Fired []FiredAlert               `json:"fired,omitempty"`
}

// State is the persisted alert bookkeeping, keyed by calendar date. It is
// owned by the evaluator: loaded at the start of a watch pass, mutated only
// through the methods below, and saved at the end of the pass.
type State struct {
	Days map[string]*DayState `json:"days"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Days: make(map[string]*DayState)}
}

// LoadState reads the persisted alert state. A corrupt or unreadable file is
// logged and replaced with an empty state; a re-fired alert after that is
// accepted degraded behaviour, a crash is not.
func LoadState(path string, logger zerolog.Logger) *State {
	state := NewState()
	if _, err := storage.LoadJSON(path, state); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("alert state unreadable, starting cold")
		return NewState()
	}
	if state.Days == nil {
		state.Days = make(map[string]*DayState)
	}
	return state
}

// Save persists the state atomically, pruning entries for dates other than
// today to bound file growth.
func (s *State) Save(path string, today time.Time) error {
	key := dateKey(today)
	pruned := NewState()
	if day, ok := s.Days[key]; ok {
		pruned.Days[key] = day
	}
	return storage.SaveJSON(path, pruned)
}

// Reference returns the captured intraday open for (instrument, day).
func (s *State) Reference(instrument string, date time.Time) (decimal.Decimal, bool) {
	day, ok := s.Days[dateKey(date)]
	if !ok || day.Refs == nil {
		return decimal.Decimal{}, false
	}
	ref, ok := day.Refs[instrument]
	return ref, ok
}

// SetReference captures the intraday open for (instrument, day).
func (s *State) SetReference(instrument string, date time.Time, open decimal.Decimal) {
	day := s.day(date)
	if day.Refs == nil {
		day.Refs = make(map[string]decimal.Decimal)
	}
	day.Refs[instrument] = open
}

// HasFired reports whether (instrument, kind) already fired on date.
func (s *State) HasFired(instrument string, kind Kind, date time.Time) bool {
	day, ok := s.Days[dateKey(date)]
	if !ok {
		return false
	}
	for _, fired := range day.Fired {
		if fired.Instrument == instrument && fired.Kind == kind {
			return true
		}
	}
	return false
}

// MarkFired records a firing. Recording the same pair twice is a no-op.
func (s *State) MarkFired(instrument string, kind Kind, date time.Time) {
	if s.HasFired(instrument, kind, date) {
		return
	}
	day := s.day(date)
	day.Fired = append(day.Fired, FiredAlert{Instrument: instrument, Kind: kind})
}

func (s *State) day(date time.Time) *DayState {
	if s.Days == nil {
		s.Days = make(map[string]*DayState)
	}
	key := dateKey(date)
	day, ok := s.Days[key]
	if !ok {
		day = &DayState{}
		s.Days[key] = day
	}
	return day
}

func dateKey(t time.Time) string {
	return history.Day(t).Format(history.DateLayout)
}
