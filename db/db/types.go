package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TripStatus follows the trip lifecycle. Settled is terminal and is only
// entered through the settlement result store.
type TripStatus string

const (
	TripStatusUpcoming TripStatus = "Upcoming"
	TripStatusOngoing  TripStatus = "Ongoing"
	TripStatusFinished TripStatus = "Finished"
	TripStatusSettled  TripStatus = "Settled"
)

// StatusForDates derives the non-settled status of a trip from its date range.
func StatusForDates(start, end, today time.Time) TripStatus {
	switch {
	case today.Before(start):
		return TripStatusUpcoming
	case today.After(end):
		return TripStatusFinished
	default:
		return TripStatusOngoing
	}
}

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type User struct {
	ID             uuid.UUID
	Username       string
	Email          string
	HashedPassword string
	IsActive       bool
}

type TripInfo struct {
	ID           uuid.UUID
	Name         string
	StartDate    time.Time
	EndDate      time.Time
	Status       TripStatus
	IsSettled    bool
	BaseCurrency string
}

type TripParticipant struct {
	TripID    uuid.UUID
	UserID    uuid.UUID
	Username  string
	IsCreator bool
}

// ExpenseShare is one participant's portion of an expense, rounded to an
// integer base-currency unit at write time.
type ExpenseShare struct {
	UserID          uuid.UUID
	ShareAmountBase decimal.Decimal
}

type Expense struct {
	ID           uuid.UUID
	TripID       uuid.UUID
	PayerID      uuid.UUID
	Date         time.Time
	Time         *time.Time
	Amount       decimal.Decimal
	Currency     string
	AmountBase   decimal.Decimal
	Description  string
	Category     string
	DisplayOrder int
	Shares       []ExpenseShare
}

type ExchangeRate struct {
	TripID     uuid.UUID
	Date       time.Time
	Currency   string
	RateToBase decimal.Decimal
}

// Budget is a user's personal spending cap for one trip, in base currency.
type Budget struct {
	TripID     uuid.UUID
	UserID     uuid.UUID
	AmountBase decimal.Decimal
}
