// Package db defines the storage contract shared by the Postgres and
// in-memory backends, plus the domain types they trade in.
package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"checkmate/settle"
)

type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	// ResolveUsernames also satisfies settle.UserResolver and the mapped
	// dataloader signature; ids absent from storage are absent from the map.
	ResolveUsernames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type TripStore interface {
	CreateTrip(ctx context.Context, info *TripInfo, creatorID uuid.UUID) error
	GetTrip(ctx context.Context, id uuid.UUID) (*TripInfo, error)
	ListTripsForUser(ctx context.Context, userID uuid.UUID) ([]TripInfo, error)
	AddTripParticipant(ctx context.Context, tripID, userID uuid.UUID) error
	ListTripParticipants(ctx context.Context, tripID uuid.UUID) ([]TripParticipant, error)
	IsTripParticipant(ctx context.Context, tripID, userID uuid.UUID) (bool, error)
	// RollTripStatuses advances Upcoming/Ongoing trips whose dates have
	// passed; settled trips are never touched. Returns rows changed.
	RollTripStatuses(ctx context.Context, today time.Time) (int64, error)
}

type ExpenseStore interface {
	CreateExpense(ctx context.Context, expense *Expense) error
	GetExpense(ctx context.Context, id uuid.UUID) (*Expense, error)
	ListExpensesByDate(ctx context.Context, tripID uuid.UUID, date time.Time) ([]Expense, error)
	UpdateExpense(ctx context.Context, expense *Expense) error
	UpdateExpenseOrder(ctx context.Context, id uuid.UUID, displayOrder int) error
	// DeleteExpense returns the deleted expense so callers can publish the
	// matching event after the row is gone.
	DeleteExpense(ctx context.Context, id uuid.UUID) (*Expense, error)
	NextDisplayOrder(ctx context.Context, tripID uuid.UUID, date time.Time) (int, error)
	// DataLoaderListShares batches share lookups for expense list endpoints.
	DataLoaderListShares(ctx context.Context, expenseIDs []uuid.UUID) (map[uuid.UUID][]ExpenseShare, error)
}

type RateStore interface {
	GetExchangeRate(ctx context.Context, tripID uuid.UUID, date time.Time, currency string) (decimal.Decimal, error)
	PutExchangeRate(ctx context.Context, rate ExchangeRate) error
}

type BudgetStore interface {
	GetBudget(ctx context.Context, tripID, userID uuid.UUID) (*Budget, error)
	UpsertBudget(ctx context.Context, budget *Budget) error
	// SumUserShares totals a user's expense shares for the trip, the
	// "spent so far" figure shown against their budget.
	SumUserShares(ctx context.Context, tripID, userID uuid.UUID) (decimal.Decimal, error)
}

// SettlementStore is the settlement engine's view of storage plus the read
// side for the result endpoint.
type SettlementStore interface {
	settle.LedgerStore
	settle.ResultStore
	GetSettlementResult(ctx context.Context, tripID uuid.UUID) (*settle.Result, error)
}

// Store is the full storage contract. Both backends (pg, mem) implement it.
type Store interface {
	UserStore
	TripStore
	ExpenseStore
	RateStore
	BudgetStore
	SettlementStore
}
