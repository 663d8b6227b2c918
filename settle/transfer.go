package settle

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type party struct {
	id     uuid.UUID
	amount decimal.Decimal
}

// sortParties orders descending by amount with the user id string as the
// tiebreak, so the transfer plan for a given balance map is reproducible.
func sortParties(parties []party) {
	sort.SliceStable(parties, func(i, j int) bool {
		cmp := parties[i].amount.Cmp(parties[j].amount)
		if cmp == 0 {
			return parties[i].id.String() < parties[j].id.String()
		}
		return cmp > 0
	})
}

// MinimizeTransfers turns net balances into a pairwise transfer plan using
// greedy largest-first matching: the biggest remaining debtor always pays
// the biggest remaining creditor. The plan size is bounded by
// creditors+debtors-1. The second return value is the dust left unsettled
// when upstream share rounding keeps the balances from summing to exactly
// zero; it is zero for consistent inputs.
func MinimizeTransfers(balances Balances) ([]Transfer, decimal.Decimal) {
	var creditors, debtors []party
	for id, amount := range balances {
		switch amount.Sign() {
		case 1:
			creditors = append(creditors, party{id: id, amount: amount})
		case -1:
			// stored positive for the matching walk
			debtors = append(debtors, party{id: id, amount: amount.Neg()})
		}
	}
	sortParties(creditors)
	sortParties(debtors)

	var transfers []Transfer
	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		amount := decimal.Min(creditors[i].amount, debtors[j].amount)
		if amount.Sign() > 0 {
			transfers = append(transfers, Transfer{
				FromUserID: debtors[j].id,
				ToUserID:   creditors[i].id,
				AmountBase: amount,
			})
		}
		creditors[i].amount = creditors[i].amount.Sub(amount)
		debtors[j].amount = debtors[j].amount.Sub(amount)
		if creditors[i].amount.IsZero() {
			i++
		}
		if debtors[j].amount.IsZero() {
			j++
		}
	}

	// Whatever survives on either side is rounding dust from upstream.
	residual := decimal.Zero
	for ; i < len(creditors); i++ {
		residual = residual.Add(creditors[i].amount)
	}
	for ; j < len(debtors); j++ {
		residual = residual.Add(debtors[j].amount)
	}
	return transfers, residual
}
