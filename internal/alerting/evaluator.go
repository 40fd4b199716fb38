package alerting

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invest-watcher/internal/instrument"
)

var hundred = decimal.NewFromInt(100)

// Level carries the optional absolute price bounds for one instrument.
type Level struct {
	Above *decimal.Decimal
	Below *decimal.Decimal
}

// Rules is the configured alert surface: a global move threshold with
// per-instrument overrides, plus optional absolute levels per instrument.
type Rules struct {
	DefaultThresholdPct decimal.Decimal
	ThresholdsPct       map[string]decimal.Decimal
	Levels              map[string]Level
}

// ThresholdFor resolves the move threshold for an instrument key.
func (r Rules) ThresholdFor(key string) decimal.Decimal {
	if pct, ok := r.ThresholdsPct[key]; ok {
		return pct
	}
	return r.DefaultThresholdPct
}

// Observation is one converted intraday price in the reporting currency.
// Open is the session open when the provider supplied one, zero otherwise.
type Observation struct {
	Instrument instrument.Instrument
	Date       time.Time
	Last       decimal.Decimal
	Open       decimal.Decimal
}

// Event is a single alert firing with the context needed to render it.
type Event struct {
	Instrument   instrument.Instrument
	Kind         Kind
	Date         time.Time
	Price        decimal.Decimal
	Reference    decimal.Decimal
	MovePct      decimal.Decimal
	ThresholdPct decimal.Decimal
	Level        decimal.Decimal
}

// Evaluator turns observations into deduplicated alert events. It is a pure
// function of (state, observation): all persistence happens outside.
type Evaluator struct {
	rules  Rules
	logger zerolog.Logger
}

// NewEvaluator constructs an evaluator over the configured rules.
func NewEvaluator(rules Rules, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		rules:  rules,
		logger: logger.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate processes one observation, mutating state and returning any events
// that fired. The first observation of a new calendar day captures the
// intraday reference; a stale reference from a previous day no longer matches
// today's key and is simply ignored, which is the whole of day rollover.
func (e *Evaluator) Evaluate(state *State, obs Observation) []Event {
	key := obs.Instrument.Key
	var events []Event

	ref, haveRef := state.Reference(key, obs.Date)
	if !haveRef {
		if obs.Open.IsPositive() {
			// The provider already told us the session open, so there is a
			// baseline to measure against on this very call.
			ref = obs.Open
			haveRef = true
		} else {
			ref = obs.Last
		}
		state.SetReference(key, obs.Date, ref)
		e.logger.Debug().Str("instrument", key).Str("reference", ref.String()).Msg("intraday reference captured")
	}

	if haveRef && !ref.IsZero() {
		movePct := obs.Last.Sub(ref).Div(ref).Mul(hundred)
		threshold := e.rules.ThresholdFor(key)

		if movePct.GreaterThanOrEqual(threshold) && !state.HasFired(key, KindSpike, obs.Date) {
			state.MarkFired(key, KindSpike, obs.Date)
			events = append(events, e.moveEvent(obs, KindSpike, ref, movePct, threshold))
		}
		if movePct.LessThanOrEqual(threshold.Neg()) && !state.HasFired(key, KindDip, obs.Date) {
			state.MarkFired(key, KindDip, obs.Date)
			events = append(events, e.moveEvent(obs, KindDip, ref, movePct, threshold))
		}
	}

	// Absolute levels need no baseline and run on every observation,
	// including the one that captured the reference.
	level := e.rules.Levels[key]
	if level.Above != nil && obs.Last.GreaterThanOrEqual(*level.Above) && !state.HasFired(key, KindPriceAbove, obs.Date) {
		state.MarkFired(key, KindPriceAbove, obs.Date)
		events = append(events, e.levelEvent(obs, KindPriceAbove, *level.Above))
	}
	if level.Below != nil && obs.Last.LessThanOrEqual(*level.Below) && !state.HasFired(key, KindPriceBelow, obs.Date) {
		state.MarkFired(key, KindPriceBelow, obs.Date)
		events = append(events, e.levelEvent(obs, KindPriceBelow, *level.Below))
	}

	return events
}

func (e *Evaluator) moveEvent(obs Observation, kind Kind, ref, movePct, threshold decimal.Decimal) Event {
	e.logger.Info().
		Str("instrument", obs.Instrument.Key).
		Str("kind", string(kind)).
		Str("move_pct", movePct.StringFixed(2)).
		Msg("alert fired")
	return Event{
		Instrument:   obs.Instrument,
		Kind:         kind,
		Date:         obs.Date,
		Price:        obs.Last,
		Reference:    ref,
		MovePct:      movePct,
		ThresholdPct: threshold,
	}
}

func (e *Evaluator) levelEvent(obs Observation, kind Kind, level decimal.Decimal) Event {
	e.logger.Info().
		Str("instrument", obs.Instrument.Key).
		Str("kind", string(kind)).
		Str("level", level.StringFixed(2)).
		Msg("alert fired")
	return Event{
		Instrument: obs.Instrument,
		Kind:       kind,
		Date:       obs.Date,
		Price:      obs.Last,
		Level:      level,
	}
}
