package settle

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Share is the portion of an expense attributed to one participant,
// in the trip's base currency.
type Share struct {
	UserID     uuid.UUID
	AmountBase decimal.Decimal
}

// Expense is the minimal ledger view the engine needs: who fronted the
// money, how much in base currency, and how it is split.
type Expense struct {
	ID         uuid.UUID
	PayerID    uuid.UUID
	AmountBase decimal.Decimal
	Currency   string
	Shares     []Share
}

// TripLedger is one trip's full expense ledger as loaded from storage.
type TripLedger struct {
	TripID       uuid.UUID
	BaseCurrency string
	Expenses     []Expense
}

// Balances maps every user seen in the ledger to their net position.
// Positive = net creditor, negative = net debtor.
type Balances map[uuid.UUID]decimal.Decimal

// Transfer is a directed payment instruction. AmountBase is strictly positive.
type Transfer struct {
	FromUserID uuid.UUID
	ToUserID   uuid.UUID
	AmountBase decimal.Decimal
}

// BalanceEntry is one user's net balance with the display name resolved,
// ordered for presentation.
type BalanceEntry struct {
	UserID     uuid.UUID       `json:"user_id"`
	Username   string          `json:"username"`
	AmountBase decimal.Decimal `json:"amount_base"`
}

// TransferEntry is a Transfer with display names resolved.
type TransferEntry struct {
	FromUserID   uuid.UUID       `json:"from_user_id"`
	FromUsername string          `json:"from_username"`
	ToUserID     uuid.UUID       `json:"to_user_id"`
	ToUsername   string          `json:"to_username"`
	AmountBase   decimal.Decimal `json:"amount_base"`
}

// Result is the persisted outcome of one settlement run. Only the most
// recent Result per trip is retained by the result store.
type Result struct {
	TripID            uuid.UUID       `json:"trip_id"`
	BaseCurrency      string          `json:"base_currency"`
	NetBalances       []BalanceEntry  `json:"net_balances"`
	Transfers         []TransferEntry `json:"transfers"`
	TotalExpensesBase decimal.Decimal `json:"total_expenses_base"`
	ParticipantCount  int             `json:"participant_count"`
	ResidualBase      decimal.Decimal `json:"residual_base"`
	Summary           string          `json:"summary"`
	CreatedAt         time.Time       `json:"created_at"`
}
