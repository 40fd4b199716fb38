package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"invest-watcher/internal/config"
)

const (
	upsertDailyPriceSQL = `INSERT INTO daily_prices (
        instrument_key,
        sample_date,
        price,
        fx_rate
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (instrument_key, sample_date) DO UPDATE
    SET
        price   = EXCLUDED.price,
        fx_rate = EXCLUDED.fx_rate;`

	listPricesBetweenSQL = `SELECT
        instrument_key,
        sample_date,
        price,
        fx_rate,
        created_at
    FROM daily_prices
    WHERE instrument_key = $1
      AND sample_date >= $2
      AND sample_date < $3
    ORDER BY sample_date;`

	deletePricesBeforeSQL = `DELETE FROM daily_prices WHERE sample_date < $1;`
)

// ArchivedSample is one long-horizon daily price row.
type ArchivedSample struct {
	InstrumentKey string
	Date          time.Time
	Price         decimal.Decimal
	FXRate        *decimal.Decimal
	CreatedAt     time.Time
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// Archive mirrors daily samples into PostgreSQL for horizons beyond the
// rolling history file. Entirely optional; absent a DSN nothing constructs it.
type Archive struct {
	pool *pgxpool.Pool
}

// NewArchive wraps an existing pool.
func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{pool: pool}
}

// Close releases the underlying pool.
func (a *Archive) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// UpsertDailyPrice records one sample, overwriting a same-day row.
func (a *Archive) UpsertDailyPrice(ctx context.Context, sample ArchivedSample) error {
	var rate any
	if sample.FXRate != nil {
		rate = *sample.FXRate
	}
	_, err := a.pool.Exec(ctx, upsertDailyPriceSQL,
		sample.InstrumentKey,
		sample.Date,
		sample.Price,
		rate,
	)
	if err != nil {
		return fmt.Errorf("upsert daily price: %w", err)
	}
	return nil
}

// ListPricesBetween returns archived samples for [from, to) in date order.
func (a *Archive) ListPricesBetween(ctx context.Context, key string, from, to time.Time) ([]ArchivedSample, error) {
	rows, err := a.pool.Query(ctx, listPricesBetweenSQL, key, from, to)
	if err != nil {
		return nil, fmt.Errorf("list archived prices: %w", err)
	}
	defer rows.Close()

	var samples []ArchivedSample
	for rows.Next() {
		var (
			sample ArchivedSample
			rate   *decimal.Decimal
		)
		if err := rows.Scan(&sample.InstrumentKey, &sample.Date, &sample.Price, &rate, &sample.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan archived price: %w", err)
		}
		sample.FXRate = rate
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived prices: %w", err)
	}
	return samples, nil
}

// PrunePricesBefore removes archive rows older than the cutoff date.
func (a *Archive) PrunePricesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := a.pool.Exec(ctx, deletePricesBeforeSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune archive: %w", err)
	}
	return tag.RowsAffected(), nil
}
