package db

import (
	"github.com/google/uuid"
	"github.com/vikstrous/dataloadgen"
)

type dataLoaderKey string

const (
	// DataLoaderKeyTrip is the request-context key the web layer stores a
	// per-request TripDataLoader under.
	DataLoaderKeyTrip dataLoaderKey = "trip_data_loader"
)

// TripDataLoader batches and caches the lookups the expense list endpoints
// would otherwise issue once per row.
type TripDataLoader struct {
	Usernames *dataloadgen.Loader[uuid.UUID, string]
	Shares    *dataloadgen.Loader[uuid.UUID, []ExpenseShare]
}

// NewTripDataLoader builds loaders backed by the store's batch queries.
// Loaders cache per instance, so build one per request.
func NewTripDataLoader(store Store) *TripDataLoader {
	return &TripDataLoader{
		Usernames: dataloadgen.NewMappedLoader(store.ResolveUsernames),
		Shares:    dataloadgen.NewMappedLoader(store.DataLoaderListShares),
	}
}
