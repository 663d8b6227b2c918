package fx

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbt "checkmate/db/db"
	"checkmate/db/mem"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient("test-key", server.URL)
	client.today = func() time.Time {
		return time.Date(2026, 7, 5, 10, 0, 0, 0, time.UTC)
	}
	return client
}

func TestFetchRateLatest(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"result":"success","conversion_rates":{"TWD":0.21,"USD":0.0067}}`)
	})

	today := time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC)
	rate, err := client.FetchRate(context.Background(), today, "JPY", "TWD")
	require.NoError(t, err)
	assert.Equal(t, "/test-key/latest/JPY", gotPath)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.21")))
}

func TestFetchRateHistorical(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"result":"success","conversion_rates":{"TWD":0.2}}`)
	})

	past := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	_, err := client.FetchRate(context.Background(), past, "jpy", "twd")
	require.NoError(t, err)
	assert.Equal(t, "/test-key/history/JPY/2026/7/1", gotPath)
}

func TestFetchRateSameCurrency(t *testing.T) {
	client := NewClient("", "http://unused")
	rate, err := client.FetchRate(context.Background(), time.Now(), "TWD", "twd")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
}

func TestFetchRateMissingKey(t *testing.T) {
	client := NewClient("", "http://unused")
	_, err := client.FetchRate(context.Background(), time.Now(), "JPY", "TWD")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestFetchRateAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":"error","error-type":"unknown-code"}`)
	})

	_, err := client.FetchRate(context.Background(), time.Now(), "XXX", "TWD")
	assert.ErrorIs(t, err, ErrRateUnavailable)
}

func TestFetchRateRetriesServerErrors(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"result":"success","conversion_rates":{"TWD":0.21}}`)
	})

	rate, err := client.FetchRate(context.Background(), time.Now(), "JPY", "TWD")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.21")))
}

type stubFetcher struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (f *stubFetcher) FetchRate(context.Context, time.Time, string, string) (decimal.Decimal, error) {
	f.calls++
	return f.rate, f.err
}

func TestServiceCachesFetchedRates(t *testing.T) {
	store := mem.NewInMemoryStore()
	ctx := context.Background()
	fetcher := &stubFetcher{rate: decimal.RequireFromString("0.21")}
	service := NewService(store, fetcher, nil)

	tripID := seedRateTrip(t, store)
	day := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)

	rate, err := service.GetRate(ctx, tripID, day, "JPY", "TWD")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.21")))
	assert.Equal(t, 1, fetcher.calls)

	// Second lookup is served from the store.
	_, err = service.GetRate(ctx, tripID, day, "JPY", "TWD")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
}

func TestServiceSameCurrencySkipsFetch(t *testing.T) {
	store := mem.NewInMemoryStore()
	fetcher := &stubFetcher{}
	service := NewService(store, fetcher, nil)

	rate, err := service.GetRate(context.Background(), uuid.New(), time.Now(), "twd", "TWD")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 0, fetcher.calls)
}

func TestConvertRounds(t *testing.T) {
	got := Convert(decimal.NewFromInt(2000), decimal.RequireFromString("0.2113"))
	assert.Equal(t, "422.6", got.String())

	got = Convert(decimal.RequireFromString("333.33"), decimal.RequireFromString("0.333333"))
	assert.Equal(t, "111.11", got.String())
}

func seedRateTrip(t *testing.T, store dbt.Store) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	userID := uuid.New()
	require.NoError(t, store.CreateUser(ctx, &dbt.User{ID: userID, Username: "alice"}))
	trip := &dbt.TripInfo{
		ID:           uuid.New(),
		Name:         "test",
		StartDate:    time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC),
		Status:       dbt.TripStatusOngoing,
		BaseCurrency: "TWD",
	}
	require.NoError(t, store.CreateTrip(ctx, trip, userID))
	return trip.ID
}
