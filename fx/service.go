package fx

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbt "checkmate/db/db"
)

// Fetcher fetches a rate from an external source.
type Fetcher interface {
	FetchRate(ctx context.Context, date time.Time, currency, baseCurrency string) (decimal.Decimal, error)
}

// Service resolves exchange rates through the database cache, falling back
// to the external API and writing fetched rates back.
type Service struct {
	rates   dbt.RateStore
	fetcher Fetcher
	log     *slog.Logger
}

func NewService(rates dbt.RateStore, fetcher Fetcher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{rates: rates, fetcher: fetcher, log: log}
}

// GetRate returns the rate converting one unit of currency into the trip's
// base currency on the given date.
func (s *Service) GetRate(ctx context.Context, tripID uuid.UUID, date time.Time, currency, baseCurrency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(currency)
	baseCurrency = strings.ToUpper(baseCurrency)
	if currency == baseCurrency {
		return decimal.NewFromInt(1), nil
	}

	cached, err := s.rates.GetExchangeRate(ctx, tripID, date, currency)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, dbt.ErrNotFound) {
		return decimal.Zero, err
	}

	fetched, err := s.fetcher.FetchRate(ctx, date, currency, baseCurrency)
	if err != nil {
		return decimal.Zero, err
	}

	err = s.rates.PutExchangeRate(ctx, dbt.ExchangeRate{
		TripID:     tripID,
		Date:       date,
		Currency:   currency,
		RateToBase: fetched,
	})
	if err != nil {
		// The fetched rate is still usable; the cache write is retried on
		// the next lookup.
		s.log.Warn("failed to cache exchange rate",
			"trip_id", tripID, "currency", currency, "error", err)
	}
	return fetched, nil
}

// Convert converts an amount into the base currency, rounded to 2 decimal
// places.
func Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(2)
}
