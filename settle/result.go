package settle

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BuildResult assembles the persisted settlement result from the engine's
// intermediates. Balance entries are ordered largest creditor first (ties by
// username, then user id) and transfers keep the order the minimization
// produced, so two runs over the same ledger snapshot render byte-identical
// results.
func BuildResult(
	ledger *TripLedger,
	balances Balances,
	transfers []Transfer,
	residual decimal.Decimal,
	usernames map[uuid.UUID]string,
	createdAt time.Time,
) *Result {
	entries := make([]BalanceEntry, 0, len(balances))
	for id, amount := range balances {
		entries = append(entries, BalanceEntry{
			UserID:     id,
			Username:   usernames[id],
			AmountBase: amount,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		cmp := entries[i].AmountBase.Cmp(entries[j].AmountBase)
		if cmp != 0 {
			return cmp > 0
		}
		if entries[i].Username != entries[j].Username {
			return entries[i].Username < entries[j].Username
		}
		return entries[i].UserID.String() < entries[j].UserID.String()
	})

	transferEntries := make([]TransferEntry, 0, len(transfers))
	for _, t := range transfers {
		transferEntries = append(transferEntries, TransferEntry{
			FromUserID:   t.FromUserID,
			FromUsername: usernames[t.FromUserID],
			ToUserID:     t.ToUserID,
			ToUsername:   usernames[t.ToUserID],
			AmountBase:   t.AmountBase,
		})
	}

	result := &Result{
		TripID:            ledger.TripID,
		BaseCurrency:      ledger.BaseCurrency,
		NetBalances:       entries,
		Transfers:         transferEntries,
		TotalExpensesBase: TotalExpenses(ledger.Expenses),
		ParticipantCount:  len(balances),
		ResidualBase:      residual,
		CreatedAt:         createdAt,
	}
	result.Summary = renderSummary(result)
	return result
}

// renderSummary produces the human-readable settlement report: totals,
// one signed line per net balance and one line per transfer.
func renderSummary(r *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total expenses: %s %s\n", r.TotalExpensesBase.StringFixed(2), r.BaseCurrency)
	fmt.Fprintf(&b, "Participants: %d\n", r.ParticipantCount)
	b.WriteString("\nNet balances:\n")
	for _, e := range r.NetBalances {
		fmt.Fprintf(&b, "  %s: %s %s\n", e.Username, signedFixed(e.AmountBase), r.BaseCurrency)
	}
	b.WriteString("\nTransfers:")
	for _, t := range r.Transfers {
		fmt.Fprintf(&b, "\n  %s -> %s: %s %s", t.FromUsername, t.ToUsername, t.AmountBase.StringFixed(2), r.BaseCurrency)
	}
	return b.String()
}

// signedFixed renders the amount with an explicit sign, two decimal places.
func signedFixed(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if d.Sign() >= 0 {
		return "+" + s
	}
	return s
}
