// Package fx fetches and caches foreign exchange rates. Rates are stored
// per trip and date so a trip's historical conversions never shift after
// the fact.
package fx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

var (
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	ErrMissingAPIKey   = errors.New("FX_API_KEY is required")
)

// Client talks to ExchangeRate-API v6.
//
// Latest rates:     GET {base}/{key}/latest/{currency}
// Historical rates: GET {base}/{key}/history/{currency}/{year}/{month}/{day}
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	today   func() time.Time
}

// NewClient creates a client for the given API key. baseURL is the API
// root, e.g. "https://v6.exchangerate-api.com/v6".
func NewClient(apiKey, baseURL string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		today:   time.Now,
	}
}

type rateResponse struct {
	Result          string             `json:"result"`
	ErrorType       string             `json:"error-type"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// FetchRate returns the rate converting one unit of currency into the base
// currency on the given date. Transient network and server errors are
// retried with exponential backoff.
func (c *Client) FetchRate(ctx context.Context, date time.Time, currency, baseCurrency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(currency)
	baseCurrency = strings.ToUpper(baseCurrency)
	if currency == baseCurrency {
		return decimal.NewFromInt(1), nil
	}
	if c.apiKey == "" {
		return decimal.Zero, ErrMissingAPIKey
	}

	url := c.rateURL(date, currency)

	var rate decimal.Decimal
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		fetched, err := c.fetchOnce(ctx, url, baseCurrency)
		if err != nil {
			return err
		}
		rate = fetched
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

func (c *Client) rateURL(date time.Time, currency string) string {
	today := c.today().UTC()
	if date.Format("2006-01-02") == today.Format("2006-01-02") {
		return fmt.Sprintf("%s/%s/latest/%s", c.baseURL, c.apiKey, currency)
	}
	return fmt.Sprintf("%s/%s/history/%s/%d/%d/%d",
		c.baseURL, c.apiKey, currency, date.Year(), int(date.Month()), date.Day())
}

func (c *Client) fetchOnce(ctx context.Context, url, baseCurrency string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return decimal.Zero, retry.RetryableError(
			fmt.Errorf("%w: status %d", ErrRateUnavailable, resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: status %d", ErrRateUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, retry.RetryableError(err)
	}

	var parsed rateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	if parsed.Result != "success" {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrRateUnavailable, parsed.ErrorType)
	}

	raw, ok := parsed.ConversionRates[baseCurrency]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s not in conversion_rates", ErrRateUnavailable, baseCurrency)
	}
	rate := decimal.NewFromFloat(raw)
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: non-positive rate %s", ErrRateUnavailable, rate)
	}
	return rate, nil
}
