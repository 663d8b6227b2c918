package settle

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch reports an expense that reached the engine without
// being normalized to the trip's base currency. Normalization is the
// upstream ledger's job; the engine refuses to mis-sum mixed currencies.
var ErrCurrencyMismatch = errors.New("expense currency differs from trip base currency")

// DustWarnThreshold is the residual (in base-currency units) above which a
// settlement run logs a warning. The source system rounds each participant
// share to an integer unit, so a trip's shares may undershoot its totals by
// a few units; that dust is carried through the computation, left unsettled,
// and surfaced on the Result rather than silently reassigned.
var DustWarnThreshold = decimal.NewFromInt(1)

// ValidateBaseCurrency checks the precondition that every expense is
// already expressed in the trip's base currency. An empty Currency field is
// accepted: some callers load amounts that are base-denominated by
// construction and never tag them.
func ValidateBaseCurrency(expenses []Expense, baseCurrency string) error {
	for _, e := range expenses {
		if e.Currency != "" && e.Currency != baseCurrency {
			return fmt.Errorf("%w: expense %s is %s, trip base is %s",
				ErrCurrencyMismatch, e.ID, e.Currency, baseCurrency)
		}
	}
	return nil
}

// ComputeBalances aggregates the ledger into per-user net positions: the
// payer gains the full base amount of each expense, every participant loses
// their share. The aggregation is a plain sum, so the outcome does not
// depend on the iteration order of expenses or shares. An empty ledger
// yields an empty map.
func ComputeBalances(expenses []Expense) Balances {
	balances := make(Balances)
	for _, e := range expenses {
		balances[e.PayerID] = balances[e.PayerID].Add(e.AmountBase)
		for _, s := range e.Shares {
			balances[s.UserID] = balances[s.UserID].Sub(s.AmountBase)
		}
	}
	return balances
}

// Sum returns the total of all net balances. With consistent inputs this is
// exactly zero; share rounding upstream can leave a small negative residual.
func (b Balances) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range b {
		total = total.Add(amount)
	}
	return total
}

// TotalExpenses sums every expense's base amount. It is independent of the
// balance computation: a user who is both payer and sole participant still
// contributes their expense to the trip total.
func TotalExpenses(expenses []Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.AmountBase)
	}
	return total
}
