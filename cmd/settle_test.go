package cmd

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkmate/settle"
)

func TestParseCSVLedger(t *testing.T) {
	rows := [][]string{
		{"description", "amount", "payer", "participants"},
		{"dinner", "450", "alice", "alice, bob, carol"},
		{"taxi", "90", "bob", "bob,carol"},
	}

	ledger, names, err := parseCSVLedger(rows)
	require.NoError(t, err)
	require.Len(t, ledger.Expenses, 2)
	assert.Len(t, names, 3)

	dinner := ledger.Expenses[0]
	assert.True(t, dinner.AmountBase.Equal(decimal.NewFromInt(450)))
	require.Len(t, dinner.Shares, 3)
	assert.True(t, dinner.Shares[0].AmountBase.Equal(decimal.NewFromInt(150)))

	// same name maps to the same id across rows
	assert.Equal(t, dinner.Shares[1].UserID, ledger.Expenses[1].PayerID)

	balances := settle.ComputeBalances(ledger.Expenses)
	transfers, residual := settle.MinimizeTransfers(balances)
	assert.True(t, residual.IsZero())
	assert.NotEmpty(t, transfers)
}

func TestParseCSVLedgerErrors(t *testing.T) {
	tests := []struct {
		name string
		rows [][]string
	}{
		{"header only", [][]string{{"description", "amount", "payer", "participants"}}},
		{"wrong column count", [][]string{{"h", "h", "h", "h"}, {"dinner", "450", "alice"}}},
		{"bad amount", [][]string{{"h", "h", "h", "h"}, {"dinner", "abc", "alice", "alice"}}},
		{"zero amount", [][]string{{"h", "h", "h", "h"}, {"dinner", "0", "alice", "alice"}}},
		{"missing payer", [][]string{{"h", "h", "h", "h"}, {"dinner", "450", " ", "alice"}}},
		{"no participants", [][]string{{"h", "h", "h", "h"}, {"dinner", "450", "alice", " ,"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := parseCSVLedger(tt.rows)
			assert.Error(t, err)
		})
	}
}
