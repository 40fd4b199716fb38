package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const chartPathPrefix = "/v8/finance/chart/"

// YahooOptions parameterise the Yahoo chart-API fetcher.
type YahooOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Yahoo fetches quotes and FX rates from the Yahoo Finance chart API.
type Yahoo struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewYahoo constructs a quote fetcher.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}

	return &Yahoo{
		opts:    opts,
		logger:  logger.With().Str("component", "quote_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchQuote retrieves the current session quote for one ticker.
func (y *Yahoo) FetchQuote(ctx context.Context, ticker string) (Quote, error) {
	if strings.TrimSpace(ticker) == "" {
		return Quote{}, fmt.Errorf("ticker is required")
	}

	endpoint := y.baseURL + chartPathPrefix + url.PathEscape(ticker) + "?interval=1d&range=1d"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(y.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "investwatcher/1.0")
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, err
	}

	if resp.StatusCode == http.StatusNotFound {
		return Quote{}, fmt.Errorf("%s: %w", ticker, ErrNoData)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, parseHTTPError(resp.StatusCode, payload)
	}

	var chart chartResponse
	if err := json.Unmarshal(payload, &chart); err != nil {
		return Quote{}, fmt.Errorf("decode chart response: %w", err)
	}

	if chart.Chart.Error != nil {
		return Quote{}, fmt.Errorf("%s: %s: %w", ticker, chart.Chart.Error.Code, ErrNoData)
	}
	if len(chart.Chart.Result) == 0 {
		return Quote{}, fmt.Errorf("%s: empty result: %w", ticker, ErrNoData)
	}

	result := chart.Chart.Result[0]
	if result.Meta.RegularMarketPrice == nil {
		return Quote{}, fmt.Errorf("%s: no market price: %w", ticker, ErrNoData)
	}

	quote := Quote{
		Last:     decimal.NewFromFloat(*result.Meta.RegularMarketPrice),
		Currency: result.Meta.Currency,
	}
	if result.Meta.RegularMarketTime > 0 {
		quote.AsOf = time.Unix(result.Meta.RegularMarketTime, 0).UTC()
	}
	if open := sessionOpen(result); open != nil {
		quote.Open = decimal.NewFromFloat(*open)
	}

	y.logger.Debug().
		Str("ticker", ticker).
		Str("last", quote.Last.String()).
		Str("currency", quote.Currency).
		Msg("quote fetched")

	return quote, nil
}

// FetchRate retrieves the last traded rate for an FX pair ticker.
func (y *Yahoo) FetchRate(ctx context.Context, pair string) (decimal.Decimal, error) {
	quote, err := y.FetchQuote(ctx, pair)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if quote.Last.IsZero() {
		return decimal.Decimal{}, fmt.Errorf("%s: zero rate: %w", pair, ErrNoData)
	}
	return quote.Last, nil
}

// sessionOpen picks the first populated open of the session bar, if any.
func sessionOpen(result chartResult) *float64 {
	for _, q := range result.Indicators.Quote {
		for _, open := range q.Open {
			if open != nil {
				return open
			}
		}
	}
	return nil
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Currency           string   `json:"currency"`
		Symbol             string   `json:"symbol"`
		RegularMarketPrice *float64 `json:"regularMarketPrice"`
		RegularMarketTime  int64    `json:"regularMarketTime"`
	} `json:"meta"`
	Indicators struct {
		Quote []struct {
			Open  []*float64 `json:"open"`
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

func parseHTTPError(status int, payload []byte) error {
	var chart chartResponse
	if err := json.Unmarshal(payload, &chart); err == nil && chart.Chart.Error != nil {
		if chart.Chart.Error.Description != "" {
			return fmt.Errorf("chart api error (%d): %s", status, chart.Chart.Error.Description)
		}
		if chart.Chart.Error.Code != "" {
			return fmt.Errorf("chart api error (%d): %s", status, chart.Chart.Error.Code)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("chart api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("chart api error (%d)", status)
}

var _ QuoteFetcher = (*Yahoo)(nil)
var _ RateFetcher = (*Yahoo)(nil)
