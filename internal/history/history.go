package history

import (
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"invest-watcher/internal/storage"
)

// DateLayout is the calendar-date form used in the persisted history file.
const DateLayout = "2006-01-02"

// Sample is one daily closing observation in the reporting currency.
type Sample struct {
	Date   time.Time
	Price  decimal.Decimal
	FXRate *decimal.Decimal
}

// Store is the per-instrument rolling window of daily samples. One sample per
// (instrument, date); a later write for the same date overwrites. Windows are
// kept date-ascending and trimmed to the retention horizon on every insert.
type Store struct {
	windows map[string][]Sample
	horizon int
	logger  zerolog.Logger
}

// NewStore builds an empty store with the given retention horizon in days.
func NewStore(horizonDays int, logger zerolog.Logger) *Store {
	if horizonDays <= 0 {
		horizonDays = 90
	}
	return &Store{
		windows: make(map[string][]Sample),
		horizon: horizonDays,
		logger:  logger.With().Str("component", "history").Logger(),
	}
}

type historyFile struct {
	Instruments map[string][]sampleRecord `json:"instruments"`
}

type sampleRecord struct {
	Date   string           `json:"date"`
	Price  decimal.Decimal  `json:"price"`
	FXRate *decimal.Decimal `json:"fx_rate,omitempty"`
}

// Load reads the persisted history file. A missing file is a cold start; an
// unparsable one is logged and likewise treated as empty, so corrupt history
// can never take a run down.
func Load(path string, horizonDays int, logger zerolog.Logger) *Store {
	store := NewStore(horizonDays, logger)

	var doc historyFile
	if _, err := storage.LoadJSON(path, &doc); err != nil {
		store.logger.Warn().Err(err).Str("path", path).Msg("history unreadable, starting cold")
		return store
	}

	for key, records := range doc.Instruments {
		window := make([]Sample, 0, len(records))
		for _, rec := range records {
			date, err := time.ParseInLocation(DateLayout, rec.Date, time.UTC)
			if err != nil {
				store.logger.Warn().Str("instrument", key).Str("date", rec.Date).Msg("dropping sample with bad date")
				continue
			}
			window = append(window, Sample{Date: date, Price: rec.Price, FXRate: rec.FXRate})
		}
		sort.Slice(window, func(i, j int) bool { return window[i].Date.Before(window[j].Date) })
		store.windows[key] = window
	}
	return store
}

// Save writes the store atomically to path.
func (s *Store) Save(path string) error {
	doc := historyFile{Instruments: make(map[string][]sampleRecord, len(s.windows))}
	for key, window := range s.windows {
		records := make([]sampleRecord, 0, len(window))
		for _, sample := range window {
			records = append(records, sampleRecord{
				Date:   sample.Date.Format(DateLayout),
				Price:  sample.Price,
				FXRate: sample.FXRate,
			})
		}
		doc.Instruments[key] = records
	}
	return storage.SaveJSON(path, doc)
}

// RecordDaily inserts or overwrites the sample for (key, date), then evicts
// everything older than the horizon counted back from that date. Calling twice
// with identical arguments leaves the window unchanged.
func (s *Store) RecordDaily(key string, date time.Time, price decimal.Decimal, fxRate *decimal.Decimal) {
	day := Day(date)
	window := s.windows[key]

	idx := sort.Search(len(window), func(i int) bool { return !window[i].Date.Before(day) })
	sample := Sample{Date: day, Price: price, FXRate: fxRate}

	switch {
	case idx < len(window) && window[idx].Date.Equal(day):
		window[idx] = sample
	default:
		window = append(window, Sample{})
		copy(window[idx+1:], window[idx:])
		window[idx] = sample
	}

	cutoff := day.AddDate(0, 0, -s.horizon)
	start := 0
	for start < len(window) && window[start].Date.Before(cutoff) {
		start++
	}
	if start > 0 {
		window = append([]Sample(nil), window[start:]...)
	}

	s.windows[key] = window
}

// Window returns the retained samples for key, oldest first. The slice is a
// copy; mutating it does not touch the store.
func (s *Store) Window(key string) []Sample {
	window := s.windows[key]
	out := make([]Sample, len(window))
	copy(out, window)
	return out
}

// LatestBefore returns the most recent sample strictly before date. Weekends
// and holidays leave gaps, so "yesterday" may be several days back.
func (s *Store) LatestBefore(key string, date time.Time) (Sample, bool) {
	day := Day(date)
	window := s.windows[key]
	for i := len(window) - 1; i >= 0; i-- {
		if window[i].Date.Before(day) {
			return window[i], true
		}
	}
	return Sample{}, false
}

// Day truncates a timestamp to its calendar date in UTC.
func Day(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
