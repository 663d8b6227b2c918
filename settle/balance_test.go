package settle

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	userA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	userB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	userC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// tripABC is the canonical three-user ledger used across the package tests:
// A pays 300 split 100/100/100 among A, B, C; B pays 150 split 75/75
// between B and C. Net: A +200, B -25, C -175.
func tripABC() []Expense {
	return []Expense{
		{
			ID:         uuid.MustParse("10000000-0000-0000-0000-000000000001"),
			PayerID:    userA,
			AmountBase: dec("300"),
			Shares: []Share{
				{UserID: userA, AmountBase: dec("100")},
				{UserID: userB, AmountBase: dec("100")},
				{UserID: userC, AmountBase: dec("100")},
			},
		},
		{
			ID:         uuid.MustParse("10000000-0000-0000-0000-000000000002"),
			PayerID:    userB,
			AmountBase: dec("150"),
			Shares: []Share{
				{UserID: userB, AmountBase: dec("75")},
				{UserID: userC, AmountBase: dec("75")},
			},
		},
	}
}

func TestComputeBalances(t *testing.T) {
	tests := []struct {
		name     string
		expenses []Expense
		expected map[uuid.UUID]string
	}{
		{
			name:     "empty ledger",
			expenses: nil,
			expected: map[uuid.UUID]string{},
		},
		{
			name: "payer is sole participant nets to zero",
			expenses: []Expense{
				{
					PayerID:    userA,
					AmountBase: dec("42.50"),
					Shares:     []Share{{UserID: userA, AmountBase: dec("42.50")}},
				},
			},
			expected: map[uuid.UUID]string{userA: "0"},
		},
		{
			name:     "three users two expenses",
			expenses: tripABC(),
			expected: map[uuid.UUID]string{
				userA: "200",
				userB: "-25",
				userC: "-175",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balances := ComputeBalances(tt.expenses)
			require.Len(t, balances, len(tt.expected))
			for id, want := range tt.expected {
				assert.True(t, balances[id].Equal(dec(want)),
					"user %s: got %s, want %s", id, balances[id], want)
			}
		})
	}
}

func TestComputeBalancesOrderIndependent(t *testing.T) {
	expenses := tripABC()
	forward := ComputeBalances(expenses)

	reversed := []Expense{expenses[1], expenses[0]}
	backward := ComputeBalances(reversed)

	require.Len(t, backward, len(forward))
	for id, amount := range forward {
		assert.True(t, backward[id].Equal(amount), "user %s differs across iteration orders", id)
	}
}

func TestBalancesSumToZero(t *testing.T) {
	balances := ComputeBalances(tripABC())
	assert.True(t, balances.Sum().IsZero(), "net balances must sum to zero, got %s", balances.Sum())
}

func TestTotalExpenses(t *testing.T) {
	assert.True(t, TotalExpenses(nil).IsZero())
	assert.True(t, TotalExpenses(tripABC()).Equal(dec("450")))
}

func TestValidateBaseCurrency(t *testing.T) {
	expenses := []Expense{
		{ID: uuid.New(), Currency: "KRW", AmountBase: dec("10")},
		{ID: uuid.New(), Currency: "", AmountBase: dec("10")}, // untagged is accepted
	}
	require.NoError(t, ValidateBaseCurrency(expenses, "KRW"))

	expenses = append(expenses, Expense{ID: uuid.New(), Currency: "USD", AmountBase: dec("10")})
	err := ValidateBaseCurrency(expenses, "KRW")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}
