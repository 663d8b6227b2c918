// Package mem provides an in-memory implementation of dbt.Store for tests
// and local development. It mirrors the Postgres backend's semantics,
// including the replace-on-write settlement store.
package mem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbt "checkmate/db/db"
	"checkmate/settle"
)

type inMemoryStore struct {
	// Mutex for thread-safety; the store may be shared by concurrent
	// requests in tests and dev mode.
	mu sync.RWMutex

	users        map[uuid.UUID]*dbt.User
	usersByName  map[string]uuid.UUID
	trips        map[uuid.UUID]*dbt.TripInfo
	participants map[uuid.UUID]map[uuid.UUID]bool // trip -> user -> is_creator
	expenses     map[uuid.UUID]*dbt.Expense
	rates        map[string]decimal.Decimal
	budgets      map[string]decimal.Decimal
	results      map[uuid.UUID]*settle.Result
}

// NewInMemoryStore creates and returns an empty in-memory store.
func NewInMemoryStore() dbt.Store {
	return &inMemoryStore{
		users:        make(map[uuid.UUID]*dbt.User),
		usersByName:  make(map[string]uuid.UUID),
		trips:        make(map[uuid.UUID]*dbt.TripInfo),
		participants: make(map[uuid.UUID]map[uuid.UUID]bool),
		expenses:     make(map[uuid.UUID]*dbt.Expense),
		rates:        make(map[string]decimal.Decimal),
		budgets:      make(map[string]decimal.Decimal),
		results:      make(map[uuid.UUID]*settle.Result),
	}
}

func rateKey(tripID uuid.UUID, date time.Time, currency string) string {
	return fmt.Sprintf("%s|%s|%s", tripID, date.Format("2006-01-02"), currency)
}

func budgetKey(tripID, userID uuid.UUID) string {
	return fmt.Sprintf("%s|%s", tripID, userID)
}

// --- UserStore ---

func (s *inMemoryStore) CreateUser(_ context.Context, user *dbt.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, dbt.ErrAlreadyExists)
	}
	if _, exists := s.usersByName[user.Username]; exists {
		return fmt.Errorf("user %s: %w", user.Username, dbt.ErrAlreadyExists)
	}

	userCopy := *user
	s.users[user.ID] = &userCopy
	s.usersByName[user.Username] = user.ID
	return nil
}

func (s *inMemoryStore) GetUser(_ context.Context, id uuid.UUID) (*dbt.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, fmt.Errorf("user %s: %w", id, dbt.ErrNotFound)
	}
	userCopy := *user
	return &userCopy, nil
}

func (s *inMemoryStore) GetUserByUsername(ctx context.Context, username string) (*dbt.User, error) {
	s.mu.RLock()
	id, exists := s.usersByName[username]
	s.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("user %s: %w", username, dbt.ErrNotFound)
	}
	return s.GetUser(ctx, id)
}

func (s *inMemoryStore) ResolveUsernames(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	usernames := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if user, exists := s.users[id]; exists {
			usernames[id] = user.Username
		}
	}
	return usernames, nil
}

// --- TripStore ---

func (s *inMemoryStore) CreateTrip(_ context.Context, info *dbt.TripInfo, creatorID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trips[info.ID]; exists {
		return fmt.Errorf("trip %s: %w", info.ID, dbt.ErrAlreadyExists)
	}

	infoCopy := *info
	s.trips[info.ID] = &infoCopy
	s.participants[info.ID] = map[uuid.UUID]bool{creatorID: true}
	return nil
}

func (s *inMemoryStore) GetTrip(_ context.Context, id uuid.UUID) (*dbt.TripInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trip, exists := s.trips[id]
	if !exists {
		return nil, fmt.Errorf("trip %s: %w", id, dbt.ErrNotFound)
	}
	tripCopy := *trip
	return &tripCopy, nil
}

func (s *inMemoryStore) ListTripsForUser(_ context.Context, userID uuid.UUID) ([]dbt.TripInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trips []dbt.TripInfo
	for tripID, members := range s.participants {
		if hasMember(members, userID) {
			trips = append(trips, *s.trips[tripID])
		}
	}
	sort.Slice(trips, func(i, j int) bool {
		if trips[i].StartDate.Equal(trips[j].StartDate) {
			return trips[i].ID.String() < trips[j].ID.String()
		}
		return trips[i].StartDate.Before(trips[j].StartDate)
	})
	return trips, nil
}

func hasMember(members map[uuid.UUID]bool, userID uuid.UUID) bool {
	_, ok := members[userID]
	return ok
}

func (s *inMemoryStore) AddTripParticipant(_ context.Context, tripID, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, exists := s.participants[tripID]
	if !exists {
		return fmt.Errorf("trip %s: %w", tripID, dbt.ErrNotFound)
	}
	if _, exists := s.users[userID]; !exists {
		return fmt.Errorf("user %s: %w", userID, dbt.ErrNotFound)
	}
	if hasMember(members, userID) {
		return fmt.Errorf("user %s in trip %s: %w", userID, tripID, dbt.ErrAlreadyExists)
	}
	members[userID] = false
	return nil
}

func (s *inMemoryStore) ListTripParticipants(_ context.Context, tripID uuid.UUID) ([]dbt.TripParticipant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, exists := s.participants[tripID]
	if !exists {
		return nil, fmt.Errorf("trip %s: %w", tripID, dbt.ErrNotFound)
	}

	participants := make([]dbt.TripParticipant, 0, len(members))
	for userID, isCreator := range members {
		p := dbt.TripParticipant{
			TripID:    tripID,
			UserID:    userID,
			IsCreator: isCreator,
		}
		if user, ok := s.users[userID]; ok {
			p.Username = user.Username
		}
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool {
		return participants[i].Username < participants[j].Username
	})
	return participants, nil
}

func (s *inMemoryStore) IsTripParticipant(_ context.Context, tripID, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, exists := s.participants[tripID]
	if !exists {
		return false, nil
	}
	return hasMember(members, userID), nil
}

func (s *inMemoryStore) RollTripStatuses(_ context.Context, today time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int64
	for _, trip := range s.trips {
		if trip.Status == dbt.TripStatusSettled || trip.Status == dbt.TripStatusFinished {
			continue
		}
		next := dbt.StatusForDates(trip.StartDate, trip.EndDate, today)
		if next != trip.Status {
			trip.Status = next
			changed++
		}
	}
	return changed, nil
}

// --- ExpenseStore ---

func (s *inMemoryStore) CreateExpense(_ context.Context, expense *dbt.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.trips[expense.TripID]; !exists {
		return fmt.Errorf("trip %s: %w", expense.TripID, dbt.ErrNotFound)
	}
	if _, exists := s.expenses[expense.ID]; exists {
		return fmt.Errorf("expense %s: %w", expense.ID, dbt.ErrAlreadyExists)
	}
	s.expenses[expense.ID] = copyExpense(expense)
	return nil
}

func (s *inMemoryStore) GetExpense(_ context.Context, id uuid.UUID) (*dbt.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expense, exists := s.expenses[id]
	if !exists {
		return nil, fmt.Errorf("expense %s: %w", id, dbt.ErrNotFound)
	}
	return copyExpense(expense), nil
}

func (s *inMemoryStore) ListExpensesByDate(_ context.Context, tripID uuid.UUID, date time.Time) ([]dbt.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expenses []dbt.Expense
	for _, e := range s.expenses {
		if e.TripID == tripID && sameDay(e.Date, date) {
			expenses = append(expenses, *copyExpense(e))
		}
	}
	sortExpensesForDisplay(expenses)
	return expenses, nil
}

// sortExpensesForDisplay orders timed expenses first by clock time, then
// untimed ones by display_order, with the id as the final tiebreak.
func sortExpensesForDisplay(expenses []dbt.Expense) {
	sort.SliceStable(expenses, func(i, j int) bool {
		a, b := expenses[i], expenses[j]
		switch {
		case a.Time != nil && b.Time == nil:
			return true
		case a.Time == nil && b.Time != nil:
			return false
		case a.Time != nil && b.Time != nil && !a.Time.Equal(*b.Time):
			return a.Time.Before(*b.Time)
		}
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		return a.ID.String() < b.ID.String()
	})
}

func sameDay(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

func (s *inMemoryStore) UpdateExpense(_ context.Context, expense *dbt.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.expenses[expense.ID]
	if !exists {
		return fmt.Errorf("expense %s: %w", expense.ID, dbt.ErrNotFound)
	}
	updated := copyExpense(expense)
	updated.TripID = old.TripID // trip membership is immutable
	s.expenses[expense.ID] = updated
	return nil
}

func (s *inMemoryStore) UpdateExpenseOrder(_ context.Context, id uuid.UUID, displayOrder int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expense, exists := s.expenses[id]
	if !exists {
		return fmt.Errorf("expense %s: %w", id, dbt.ErrNotFound)
	}
	expense.DisplayOrder = displayOrder
	return nil
}

func (s *inMemoryStore) DeleteExpense(_ context.Context, id uuid.UUID) (*dbt.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expense, exists := s.expenses[id]
	if !exists {
		return nil, fmt.Errorf("expense %s: %w", id, dbt.ErrNotFound)
	}
	delete(s.expenses, id)
	return expense, nil
}

func (s *inMemoryStore) NextDisplayOrder(_ context.Context, tripID uuid.UUID, date time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	next := 1
	for _, e := range s.expenses {
		if e.TripID == tripID && sameDay(e.Date, date) && e.DisplayOrder >= next {
			next = e.DisplayOrder + 1
		}
	}
	return next, nil
}

func (s *inMemoryStore) DataLoaderListShares(_ context.Context, expenseIDs []uuid.UUID) (map[uuid.UUID][]dbt.ExpenseShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shares := make(map[uuid.UUID][]dbt.ExpenseShare, len(expenseIDs))
	for _, id := range expenseIDs {
		if expense, exists := s.expenses[id]; exists {
			shares[id] = append([]dbt.ExpenseShare(nil), expense.Shares...)
		}
	}
	return shares, nil
}

func copyExpense(e *dbt.Expense) *dbt.Expense {
	expenseCopy := *e
	expenseCopy.Shares = append([]dbt.ExpenseShare(nil), e.Shares...)
	if e.Time != nil {
		t := *e.Time
		expenseCopy.Time = &t
	}
	return &expenseCopy
}

// --- RateStore ---

func (s *inMemoryStore) GetExchangeRate(_ context.Context, tripID uuid.UUID, date time.Time, currency string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rate, exists := s.rates[rateKey(tripID, date, currency)]
	if !exists {
		return decimal.Zero, fmt.Errorf("rate %s on %s for trip %s: %w",
			currency, date.Format("2006-01-02"), tripID, dbt.ErrNotFound)
	}
	return rate, nil
}

func (s *inMemoryStore) PutExchangeRate(_ context.Context, rate dbt.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rates[rateKey(rate.TripID, rate.Date, rate.Currency)] = rate.RateToBase
	return nil
}

// --- BudgetStore ---

func (s *inMemoryStore) GetBudget(_ context.Context, tripID, userID uuid.UUID) (*dbt.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	amount, exists := s.budgets[budgetKey(tripID, userID)]
	if !exists {
		return nil, fmt.Errorf("budget for user %s in trip %s: %w", userID, tripID, dbt.ErrNotFound)
	}
	return &dbt.Budget{TripID: tripID, UserID: userID, AmountBase: amount}, nil
}

func (s *inMemoryStore) UpsertBudget(_ context.Context, budget *dbt.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.budgets[budgetKey(budget.TripID, budget.UserID)] = budget.AmountBase
	return nil
}

func (s *inMemoryStore) SumUserShares(_ context.Context, tripID, userID uuid.UUID) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, e := range s.expenses {
		if e.TripID != tripID {
			continue
		}
		for _, share := range e.Shares {
			if share.UserID == userID {
				total = total.Add(share.ShareAmountBase)
			}
		}
	}
	return total, nil
}

// --- SettlementStore ---

func (s *inMemoryStore) LoadExpenses(_ context.Context, tripID uuid.UUID) (*settle.TripLedger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trip, exists := s.trips[tripID]
	if !exists {
		return nil, fmt.Errorf("trip %s: %w", tripID, dbt.ErrNotFound)
	}

	var expenses []dbt.Expense
	for _, e := range s.expenses {
		if e.TripID == tripID {
			expenses = append(expenses, *copyExpense(e))
		}
	}
	sort.Slice(expenses, func(i, j int) bool {
		return expenses[i].ID.String() < expenses[j].ID.String()
	})

	ledger := &settle.TripLedger{
		TripID:       tripID,
		BaseCurrency: trip.BaseCurrency,
		Expenses:     make([]settle.Expense, 0, len(expenses)),
	}
	for _, e := range expenses {
		entry := settle.Expense{
			ID:         e.ID,
			PayerID:    e.PayerID,
			AmountBase: e.AmountBase,
			Currency:   trip.BaseCurrency,
			Shares:     make([]settle.Share, 0, len(e.Shares)),
		}
		for _, share := range e.Shares {
			entry.Shares = append(entry.Shares, settle.Share{
				UserID:     share.UserID,
				AmountBase: share.ShareAmountBase,
			})
		}
		ledger.Expenses = append(ledger.Expenses, entry)
	}
	return ledger, nil
}

func (s *inMemoryStore) ReplaceSettlementResult(_ context.Context, tripID uuid.UUID, result *settle.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trip, exists := s.trips[tripID]
	if !exists {
		return fmt.Errorf("trip %s: %w", tripID, dbt.ErrNotFound)
	}

	resultCopy := *result
	s.results[tripID] = &resultCopy
	trip.IsSettled = true
	trip.Status = dbt.TripStatusSettled
	return nil
}

func (s *inMemoryStore) GetSettlementResult(_ context.Context, tripID uuid.UUID) (*settle.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, exists := s.results[tripID]
	if !exists {
		return nil, fmt.Errorf("settlement result for trip %s: %w", tripID, dbt.ErrNotFound)
	}
	resultCopy := *result
	return &resultCopy, nil
}
