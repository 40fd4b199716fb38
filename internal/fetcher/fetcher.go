package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoData indicates the provider returned nothing usable for a ticker. The
// caller skips the instrument for the cycle and continues with the others.
var ErrNoData = errors.New("no market data")

// Quote is one raw provider observation in the instrument's native currency.
type Quote struct {
	Last     decimal.Decimal
	Open     decimal.Decimal
	Currency string
	AsOf     time.Time
}

// QuoteFetcher retrieves the current quote for a ticker.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, ticker string) (Quote, error)
}

// RateFetcher retrieves the current exchange rate for a currency pair.
type RateFetcher interface {
	FetchRate(ctx context.Context, pair string) (decimal.Decimal, error)
}
