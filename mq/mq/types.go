package mq

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionDelete
	ActionCnt
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	}
	return "unknown"
}

// TripExpenseMessage is broadcast when an expense changes. Amounts are in
// the trip's base currency.
type TripExpenseMessage struct {
	TripID      uuid.UUID       `json:"trip_id"`
	ExpenseID   uuid.UUID       `json:"expense_id"`
	PayerID     uuid.UUID       `json:"payer_id"`
	Date        string          `json:"date"`
	AmountBase  decimal.Decimal `json:"amount_base"`
	Description string          `json:"description"`
}

func (m TripExpenseMessage) GetTopic() uuid.UUID {
	return m.TripID
}

// TripSettlementMessage is broadcast when a trip is settled.
type TripSettlementMessage struct {
	TripID           uuid.UUID       `json:"trip_id"`
	ParticipantCount int             `json:"participant_count"`
	TransferCount    int             `json:"transfer_count"`
	ResidualBase     decimal.Decimal `json:"residual_base"`
}

func (m TripSettlementMessage) GetTopic() uuid.UUID {
	return m.TripID
}
