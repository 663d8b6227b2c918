// Package settle computes trip settlements: per-user net balances from the
// expense ledger and a minimized transfer plan that zeroes them out. The
// computation is pure, deterministic and exact-decimal; all I/O goes through
// the collaborator interfaces below.
package settle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// LedgerStore loads a trip's full expense ledger. Amounts are already
// normalized to the trip's base currency by the expense layer.
type LedgerStore interface {
	LoadExpenses(ctx context.Context, tripID uuid.UUID) (*TripLedger, error)
}

// UserResolver maps user ids to display names. Every id the engine passes
// in appeared in the ledger, so a missing name is a data-integrity error on
// the resolver's side, never papered over here.
type UserResolver interface {
	ResolveUsernames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// ResultStore persists a settlement result. The implementation must delete
// any prior result for the trip, insert the new one and mark the trip
// settled as a single transaction.
type ResultStore interface {
	ReplaceSettlementResult(ctx context.Context, tripID uuid.UUID, result *Result) error
}

// Engine wires the pure settlement computation to its collaborators. It
// holds no per-trip state, so one Engine may serve concurrent settlements
// of different trips; concurrent runs for the same trip are serialized by
// the result store's transaction.
type Engine struct {
	Ledger  LedgerStore
	Users   UserResolver
	Results ResultStore

	Log *slog.Logger
	Now func() time.Time
}

// NewEngine returns an Engine using the default logger and clock.
func NewEngine(ledger LedgerStore, users UserResolver, results ResultStore) *Engine {
	return &Engine{
		Ledger:  ledger,
		Users:   users,
		Results: results,
		Log:     slog.Default(),
		Now:     time.Now,
	}
}

// Settle runs a full settlement for one trip: load the ledger, aggregate
// balances, minimize transfers, resolve usernames, persist the result and
// mark the trip settled. A trip with no expenses settles to an empty result
// with zero transfers. Storage errors propagate unmodified; there is no
// retry and no partial commit.
func (e *Engine) Settle(ctx context.Context, tripID uuid.UUID) (*Result, error) {
	ledger, err := e.Ledger.LoadExpenses(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("load expenses for trip %s: %w", tripID, err)
	}
	if err := ValidateBaseCurrency(ledger.Expenses, ledger.BaseCurrency); err != nil {
		return nil, err
	}

	balances := ComputeBalances(ledger.Expenses)
	transfers, residual := MinimizeTransfers(balances)

	ids := make([]uuid.UUID, 0, len(balances))
	for id := range balances {
		ids = append(ids, id)
	}
	usernames, err := e.Users.ResolveUsernames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve usernames for trip %s: %w", tripID, err)
	}
	for _, id := range ids {
		if _, ok := usernames[id]; !ok {
			return nil, fmt.Errorf("no username resolved for user %s in trip %s", id, tripID)
		}
	}

	result := BuildResult(ledger, balances, transfers, residual, usernames, e.Now().UTC())
	if result.ResidualBase.Abs().Cmp(DustWarnThreshold) >= 0 {
		e.Log.Warn("settlement left rounding dust unsettled",
			"trip_id", tripID,
			"residual_base", result.ResidualBase.String(),
			"base_currency", result.BaseCurrency,
		)
	}

	if err := e.Results.ReplaceSettlementResult(ctx, tripID, result); err != nil {
		return nil, fmt.Errorf("store settlement result for trip %s: %w", tripID, err)
	}
	return result, nil
}
