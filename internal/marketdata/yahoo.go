// Package marketdata fetches daily close prices, FX rates, split history and
// ticker metadata from the Yahoo Finance chart API.
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/mtlprog/investdash/internal/domain"
)

var (
	// ErrSymbolNotFound is returned when the API does not know a symbol.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrUpstream wraps every failed exchange with the market data API.
	ErrUpstream = errors.New("market data unavailable")
)

// Quote is the metadata of a ticker as reported by the API.
type Quote struct {
	Symbol    string
	Currency  string
	QuoteType string
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
		Currency       string `json:"currency"`
		Symbol         string `json:"symbol"`
		InstrumentType string `json:"instrumentType"`
		GMTOffset      int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
	Events struct {
		Splits map[string]struct {
			Date        int64   `json:"date"`
			Numerator   float64 `json:"numerator"`
			Denominator float64 `json:"denominator"`
		} `json:"splits"`
	} `json:"events"`
}

// Client is an HTTP client for the Yahoo Finance chart API with retry on 429
// and a client-side rate limit.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewClient creates a chart API client. requestsPerSecond <= 0 disables the limiter.
func NewClient(baseURL string, maxRetries int, baseDelay time.Duration, requestsPerSecond float64) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		limiter:    rate.NewLimiter(limit, 1),
		now:        time.Now,
	}
}

// Symbol renders an instrument as a chart API symbol. FX rates are quoted
// against USD, so FxRate("EUR") becomes "EURUSD=X".
func Symbol(inst domain.Instrument) string {
	if inst.IsFX() {
		return inst.Code + domain.USD + "=X"
	}
	return inst.Code
}

// History returns the daily closes of every instrument from start. Unknown
// symbols and empty series are omitted from the result.
func (c *Client) History(ctx context.Context, instruments []domain.Instrument, start time.Time) (map[domain.Instrument]domain.Series, error) {
	out := make(map[domain.Instrument]domain.Series, len(instruments))
	for _, inst := range instruments {
		res, err := c.chart(ctx, Symbol(inst), start, false)
		if errors.Is(err, ErrSymbolNotFound) {
			slog.Warn("no market data for instrument", "instrument", inst)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", inst, err)
		}

		series := closes(res)
		if len(series) == 0 {
			slog.Warn("empty series for instrument", "instrument", inst)
			continue
		}
		out[inst] = series
	}
	return out, nil
}

// Splits returns the full split history of ticker. Unknown tickers have none.
func (c *Client) Splits(ctx context.Context, ticker string) ([]domain.SplitEvent, error) {
	res, err := c.chart(ctx, ticker, time.Unix(0, 0), true)
	if errors.Is(err, ErrSymbolNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching splits of %s: %w", ticker, err)
	}

	events := make([]domain.SplitEvent, 0, len(res.Events.Splits))
	for _, s := range res.Events.Splits {
		if s.Denominator == 0 {
			continue
		}
		events = append(events, domain.SplitEvent{
			Ticker: ticker,
			Date:   domain.Day(time.Unix(s.Date+res.Meta.GMTOffset, 0).UTC()),
			Ratio:  decimal.NewFromFloat(s.Numerator).Div(decimal.NewFromFloat(s.Denominator)),
		})
	}
	slices.SortFunc(events, func(a, b domain.SplitEvent) int { return a.Date.Compare(b.Date) })
	return events, nil
}

// Metadata returns the currency and quote type of ticker.
func (c *Client) Metadata(ctx context.Context, ticker string) (Quote, error) {
	res, err := c.chart(ctx, ticker, c.now().AddDate(0, 0, -7), false)
	if err != nil {
		return Quote{}, fmt.Errorf("fetching metadata of %s: %w", ticker, err)
	}
	return Quote{Symbol: ticker, Currency: res.Meta.Currency, QuoteType: res.Meta.InstrumentType}, nil
}

func closes(res *chartResult) domain.Series {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	values := res.Indicators.Quote[0].Close

	series := make(domain.Series, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(values) || values[i] == nil {
			continue
		}
		date := domain.Day(time.Unix(ts+res.Meta.GMTOffset, 0).UTC())
		point := domain.PricePoint{Date: date, Value: decimal.NewFromFloat(*values[i])}
		// Intraday rows for the current session share a date with the last close.
		if n := len(series); n > 0 && series[n-1].Date.Equal(date) {
			series[n-1] = point
			continue
		}
		series = append(series, point)
	}
	return series
}

func (c *Client) chart(ctx context.Context, symbol string, start time.Time, splits bool) (*chartResult, error) {
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(c.now().Unix(), 10))
	q.Set("interval", "1d")
	if splits {
		q.Set("events", "split")
	}

	var resp chartResponse
	if err := c.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol)+"?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if resp.Chart.Error != nil {
		if resp.Chart.Error.Code == "Not Found" {
			return nil, ErrSymbolNotFound
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrUpstream, resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, ErrSymbolNotFound
	}
	return &resp.Chart.Result[0], nil
}

// get performs a GET request with retry on 429.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path

	var lastErr error
	for attempt := range c.maxRetries + 1 {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; investdash)")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: executing request: %w", ErrUpstream, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: reading response: %w", ErrUpstream, err)
		}

		switch resp.StatusCode {
		case http.StatusOK:
			return body, nil
		case http.StatusNotFound:
			return nil, ErrSymbolNotFound
		case http.StatusTooManyRequests:
			lastErr = fmt.Errorf("%w: HTTP 429 at %s (attempt %d/%d)", ErrUpstream, url, attempt+1, c.maxRetries+1)
			if attempt < c.maxRetries {
				delay := c.baseDelay * time.Duration(1<<uint(attempt))
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
				continue
			}
			return nil, lastErr
		}

		return nil, fmt.Errorf("%w: HTTP %d from %s: %s", ErrUpstream, resp.StatusCode, url, string(body))
	}

	return nil, lastErr
}

func (c *Client) getJSON(ctx context.Context, path string, dest any) error {
	body, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: parsing JSON from %s: %w", ErrUpstream, path, err)
	}
	return nil
}
