package pg

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"checkmate/settle"
)

type UserModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username       string    `gorm:"size:50;not null;uniqueIndex"`
	Email          string    `gorm:"size:100;not null;uniqueIndex"`
	HashedPassword string    `gorm:"size:255;not null"`
	IsActive       bool      `gorm:"not null;default:true"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserModel) TableName() string {
	return "users"
}

type TripModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name         string    `gorm:"size:200;not null"`
	StartDate    time.Time `gorm:"type:date;not null;index"`
	EndDate      time.Time `gorm:"type:date;not null;index"`
	Status       string    `gorm:"size:20;not null"`
	IsSettled    bool      `gorm:"not null;default:false"`
	BaseCurrency string    `gorm:"size:3;not null"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TripModel) TableName() string {
	return "trips"
}

type TripParticipantModel struct {
	TripID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	IsCreator bool      `gorm:"not null;default:false"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (TripParticipantModel) TableName() string {
	return "trip_participants"
}

type ExpenseModel struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TripID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	PayerID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	Date         time.Time       `gorm:"type:date;not null;index"`
	Time         *time.Time      `gorm:"type:time"`
	Amount       decimal.Decimal `gorm:"type:numeric(15,2);not null"`
	Currency     string          `gorm:"size:3;not null"`
	AmountBase   decimal.Decimal `gorm:"type:numeric(15,2);not null"`
	Description  string          `gorm:"type:text"`
	Category     string          `gorm:"size:50"`
	DisplayOrder int             `gorm:"not null;default:1;index"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ExpenseModel) TableName() string {
	return "expenses"
}

type ExpenseParticipantModel struct {
	ExpenseID       uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ShareAmountBase decimal.Decimal `gorm:"type:numeric(15,2);not null"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ExpenseParticipantModel) TableName() string {
	return "expense_participants"
}

type ExchangeRateModel struct {
	TripID     uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Date       time.Time       `gorm:"type:date;primaryKey"`
	Currency   string          `gorm:"size:3;primaryKey"`
	RateToBase decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ExchangeRateModel) TableName() string {
	return "exchange_rates"
}

type BudgetModel struct {
	TripID     uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AmountBase decimal.Decimal `gorm:"type:numeric(15,2);not null"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (BudgetModel) TableName() string {
	return "budgets"
}

// BalanceEntriesJSON stores the ordered balance list as a jsonb column.
type BalanceEntriesJSON []settle.BalanceEntry

func (e BalanceEntriesJSON) Value() (driver.Value, error) {
	return json.Marshal(e)
}

func (e *BalanceEntriesJSON) Scan(value interface{}) error {
	return scanJSON(value, e)
}

// TransferEntriesJSON stores the ordered transfer plan as a jsonb column.
type TransferEntriesJSON []settle.TransferEntry

func (e TransferEntriesJSON) Value() (driver.Value, error) {
	return json.Marshal(e)
}

func (e *TransferEntriesJSON) Scan(value interface{}) error {
	return scanJSON(value, e)
}

func scanJSON(value interface{}, dest interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", value)
	}
}

type SettlementResultModel struct {
	ID                uuid.UUID           `gorm:"type:uuid;primaryKey"`
	TripID            uuid.UUID           `gorm:"type:uuid;not null;index"`
	BaseCurrency      string              `gorm:"size:3;not null"`
	NetBalances       BalanceEntriesJSON  `gorm:"type:jsonb;not null"`
	Transfers         TransferEntriesJSON `gorm:"type:jsonb;not null"`
	TotalExpensesBase decimal.Decimal     `gorm:"type:numeric(15,2);not null"`
	ParticipantCount  int                 `gorm:"not null"`
	ResidualBase      decimal.Decimal     `gorm:"type:numeric(15,2);not null"`
	Summary           string              `gorm:"type:text"`
	// meta data
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SettlementResultModel) TableName() string {
	return "settlement_results"
}
