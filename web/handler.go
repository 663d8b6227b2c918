package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"checkmate/auth"
	dbt "checkmate/db/db"
	"checkmate/fx"
	"checkmate/libs/diff"
	mqt "checkmate/mq/mq"
)

const dateLayout = "2006-01-02"

func abortWithStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dbt.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, dbt.ErrAlreadyExists):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// requireTripAccess loads the trip and verifies the caller participates in
// it. On failure the request is aborted.
func (h *Handler) requireTripAccess(c *gin.Context) (*dbt.TripInfo, bool) {
	tripID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid trip id"})
		return nil, false
	}

	trip, err := h.Store.GetTrip(c.Request.Context(), tripID)
	if err != nil {
		abortWithStoreError(c, err)
		return nil, false
	}

	ok, err := h.Store.IsTripParticipant(c.Request.Context(), tripID, currentUserID(c))
	if err != nil {
		abortWithStoreError(c, err)
		return nil, false
	}
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant of this trip"})
		return nil, false
	}
	return trip, true
}

// --- auth ---

type signupRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token    string    `json:"token"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	user := &dbt.User{
		ID:             uuid.New(),
		Username:       req.Username,
		Email:          req.Email,
		HashedPassword: hashed,
		IsActive:       true,
	}
	if err := h.Store.CreateUser(c.Request.Context(), user); err != nil {
		abortWithStoreError(c, err)
		return
	}

	token, err := h.JWT.Generate(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, authResponse{Token: token, UserID: user.ID, Username: user.Username})
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil || !auth.VerifyPassword(req.Password, user.HashedPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidCredentials.Error()})
		return
	}
	if !user.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "account is deactivated"})
		return
	}

	token, err := h.JWT.Generate(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: token, UserID: user.ID, Username: user.Username})
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.Store.GetUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

// --- trips ---

type createTripRequest struct {
	Name         string `json:"name" binding:"required"`
	StartDate    string `json:"start_date" binding:"required"`
	EndDate      string `json:"end_date" binding:"required"`
	BaseCurrency string `json:"base_currency" binding:"required"`
}

func tripResponse(trip *dbt.TripInfo) gin.H {
	return gin.H{
		"id":            trip.ID,
		"name":          trip.Name,
		"start_date":    trip.StartDate.Format(dateLayout),
		"end_date":      trip.EndDate.Format(dateLayout),
		"status":        trip.Status,
		"is_settled":    trip.IsSettled,
		"base_currency": trip.BaseCurrency,
	}
}

func (h *Handler) CreateTrip(c *gin.Context) {
	var req createTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date"})
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date"})
		return
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date before start_date"})
		return
	}

	trip := &dbt.TripInfo{
		ID:           uuid.New(),
		Name:         req.Name,
		StartDate:    start,
		EndDate:      end,
		Status:       dbt.StatusForDates(start, end, time.Now().UTC()),
		BaseCurrency: normalizeCurrency(req.BaseCurrency),
	}
	if err := h.Store.CreateTrip(c.Request.Context(), trip, currentUserID(c)); err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tripResponse(trip))
}

func (h *Handler) ListTrips(c *gin.Context) {
	trips, err := h.Store.ListTripsForUser(c.Request.Context(), currentUserID(c))
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	out := make([]gin.H, 0, len(trips))
	for i := range trips {
		out = append(out, tripResponse(&trips[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetTrip(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, tripResponse(trip))
}

type addParticipantRequest struct {
	Username string `json:"username" binding:"required"`
}

func (h *Handler) AddParticipant(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}
	if trip.IsSettled {
		c.JSON(http.StatusConflict, gin.H{"error": "trip is settled"})
		return
	}

	var req addParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	if err := h.Store.AddTripParticipant(c.Request.Context(), trip.ID, user.ID); err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"trip_id": trip.ID, "user_id": user.ID, "username": user.Username})
}

func (h *Handler) ListParticipants(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}

	participants, err := h.Store.ListTripParticipants(c.Request.Context(), trip.ID)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, participants)
}

// --- expenses ---

type expenseRequest struct {
	Date           string      `json:"date" binding:"required"`
	Time           *string     `json:"time"`
	Amount         string      `json:"amount" binding:"required"`
	Currency       string      `json:"currency" binding:"required"`
	Description    string      `json:"description" binding:"required"`
	Category       string      `json:"category"`
	PayerID        *uuid.UUID  `json:"payer_id"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
}

type expenseResponse struct {
	ID            uuid.UUID          `json:"id"`
	TripID        uuid.UUID          `json:"trip_id"`
	PayerID       uuid.UUID          `json:"payer_id"`
	PayerUsername string             `json:"payer_username"`
	Date          string             `json:"date"`
	Time          *time.Time         `json:"time,omitempty"`
	Amount        decimal.Decimal    `json:"amount"`
	Currency      string             `json:"currency"`
	AmountBase    decimal.Decimal    `json:"amount_base"`
	Description   string             `json:"description"`
	Category      string             `json:"category"`
	DisplayOrder  int                `json:"display_order"`
	Shares        []dbt.ExpenseShare `json:"shares"`
}

func (h *Handler) expenseToResponse(c *gin.Context, expense *dbt.Expense) expenseResponse {
	resp := expenseResponse{
		ID:           expense.ID,
		TripID:       expense.TripID,
		PayerID:      expense.PayerID,
		Date:         expense.Date.Format(dateLayout),
		Time:         expense.Time,
		Amount:       expense.Amount,
		Currency:     expense.Currency,
		AmountBase:   expense.AmountBase,
		Description:  expense.Description,
		Category:     expense.Category,
		DisplayOrder: expense.DisplayOrder,
		Shares:       expense.Shares,
	}
	if loader := tripDataLoader(c); loader != nil {
		if name, err := loader.Usernames.Load(c.Request.Context(), expense.PayerID); err == nil {
			resp.PayerUsername = name
		}
		if resp.Shares == nil {
			if shares, err := loader.Shares.Load(c.Request.Context(), expense.ID); err == nil {
				resp.Shares = shares
			}
		}
	}
	return resp
}

// buildExpense validates the request against the trip and converts the
// amount into the base currency.
func (h *Handler) buildExpense(c *gin.Context, trip *dbt.TripInfo, req *expenseRequest) (*dbt.Expense, bool) {
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return nil, false
	}

	var clock *time.Time
	if req.Time != nil {
		parsed, err := time.Parse(time.RFC3339, *req.Time)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time, expected RFC3339"})
			return nil, false
		}
		clock = &parsed
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive decimal"})
		return nil, false
	}

	payerID := currentUserID(c)
	if req.PayerID != nil {
		payerID = *req.PayerID
	}
	if ok, err := h.Store.IsTripParticipant(c.Request.Context(), trip.ID, payerID); err != nil || !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payer is not a participant of this trip"})
		return nil, false
	}

	participantIDs := req.ParticipantIDs
	if len(participantIDs) == 0 {
		// default split: everyone on the trip
		participants, err := h.Store.ListTripParticipants(c.Request.Context(), trip.ID)
		if err != nil {
			abortWithStoreError(c, err)
			return nil, false
		}
		for _, p := range participants {
			participantIDs = append(participantIDs, p.UserID)
		}
	} else {
		for _, id := range participantIDs {
			ok, err := h.Store.IsTripParticipant(c.Request.Context(), trip.ID, id)
			if err != nil || !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "share participant is not on this trip"})
				return nil, false
			}
		}
	}

	currency := normalizeCurrency(req.Currency)
	rate, err := h.Fx.GetRate(c.Request.Context(), trip.ID, date, currency, trip.BaseCurrency)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return nil, false
	}
	amountBase := fx.Convert(amount, rate)

	return &dbt.Expense{
		ID:          uuid.New(),
		TripID:      trip.ID,
		PayerID:     payerID,
		Date:        date,
		Time:        clock,
		Amount:      amount,
		Currency:    currency,
		AmountBase:  amountBase,
		Description: req.Description,
		Category:    req.Category,
		Shares:      splitShares(amountBase, participantIDs),
	}, true
}

// splitShares divides the base amount evenly, rounding each share to a
// whole base-currency unit. Rounding leftovers surface as settlement
// residual rather than being tacked onto anyone's share.
func splitShares(amountBase decimal.Decimal, participantIDs []uuid.UUID) []dbt.ExpenseShare {
	n := decimal.NewFromInt(int64(len(participantIDs)))
	share := amountBase.DivRound(n, 0)
	shares := make([]dbt.ExpenseShare, 0, len(participantIDs))
	for _, id := range participantIDs {
		shares = append(shares, dbt.ExpenseShare{UserID: id, ShareAmountBase: share})
	}
	return shares
}

func (h *Handler) CreateExpense(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}
	if trip.IsSettled {
		c.JSON(http.StatusConflict, gin.H{"error": "trip is settled"})
		return
	}

	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	expense, ok := h.buildExpense(c, trip, &req)
	if !ok {
		return
	}

	order, err := h.Store.NextDisplayOrder(c.Request.Context(), trip.ID, expense.Date)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	expense.DisplayOrder = order

	if err := h.Store.CreateExpense(c.Request.Context(), expense); err != nil {
		abortWithStoreError(c, err)
		return
	}

	h.publishExpenseEvent(mqt.ActionCreate, expense)
	c.JSON(http.StatusCreated, h.expenseToResponse(c, expense))
}

func (h *Handler) ListExpenses(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}

	date, err := time.Parse(dateLayout, c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required, format " + dateLayout})
		return
	}

	expenses, err := h.Store.ListExpensesByDate(c.Request.Context(), trip.ID, date)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	out := make([]expenseResponse, 0, len(expenses))
	for i := range expenses {
		out = append(out, h.expenseToResponse(c, &expenses[i]))
	}
	c.JSON(http.StatusOK, out)
}

// loadTripExpense resolves the expense route params and checks the expense
// belongs to the trip in the path.
func (h *Handler) loadTripExpense(c *gin.Context, trip *dbt.TripInfo) (*dbt.Expense, bool) {
	expenseID, err := uuid.Parse(c.Param("expenseId"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid expense id"})
		return nil, false
	}

	expense, err := h.Store.GetExpense(c.Request.Context(), expenseID)
	if err != nil {
		abortWithStoreError(c, err)
		return nil, false
	}
	if expense.TripID != trip.ID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "expense not found in this trip"})
		return nil, false
	}
	return expense, true
}

func (h *Handler) UpdateExpense(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}
	if trip.IsSettled {
		c.JSON(http.StatusConflict, gin.H{"error": "trip is settled"})
		return
	}

	old, ok := h.loadTripExpense(c, trip)
	if !ok {
		return
	}

	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, ok := h.buildExpense(c, trip, &req)
	if !ok {
		return
	}
	updated.ID = old.ID
	updated.DisplayOrder = old.DisplayOrder

	if err := h.Store.UpdateExpense(c.Request.Context(), updated); err != nil {
		abortWithStoreError(c, err)
		return
	}

	// no-op updates do not broadcast
	changed, err := diff.Changed(old, updated)
	if err != nil || changed {
		h.publishExpenseEvent(mqt.ActionUpdate, updated)
	}
	c.JSON(http.StatusOK, h.expenseToResponse(c, updated))
}

type reorderRequest struct {
	DisplayOrder int `json:"display_order" binding:"min=0"`
}

func (h *Handler) ReorderExpense(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}
	if trip.IsSettled {
		c.JSON(http.StatusConflict, gin.H{"error": "trip is settled"})
		return
	}

	expense, ok := h.loadTripExpense(c, trip)
	if !ok {
		return
	}

	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Store.UpdateExpenseOrder(c.Request.Context(), expense.ID, req.DisplayOrder); err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": expense.ID, "display_order": req.DisplayOrder})
}

func (h *Handler) DeleteExpense(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}
	if trip.IsSettled {
		c.JSON(http.StatusConflict, gin.H{"error": "trip is settled"})
		return
	}

	expense, ok := h.loadTripExpense(c, trip)
	if !ok {
		return
	}

	deleted, err := h.Store.DeleteExpense(c.Request.Context(), expense.ID)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	h.publishExpenseEvent(mqt.ActionDelete, deleted)
	c.Status(http.StatusNoContent)
}

func (h *Handler) publishExpenseEvent(action mqt.Action, expense *dbt.Expense) {
	queue := h.MQ.GetTripExpenseMessageQueue(action)
	if queue == nil {
		return
	}
	err := queue.Publish(mqt.TripExpenseMessage{
		TripID:      expense.TripID,
		ExpenseID:   expense.ID,
		PayerID:     expense.PayerID,
		Date:        expense.Date.Format(dateLayout),
		AmountBase:  expense.AmountBase,
		Description: expense.Description,
	})
	if err != nil {
		h.Log.Warn("failed to publish expense event",
			"action", action.String(), "expense_id", expense.ID, "error", err)
	}
}

// --- fx ---

func (h *Handler) GetExchangeRate(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}

	currency := c.Query("currency")
	if currency == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "currency query parameter is required"})
		return
	}
	date, err := time.Parse(dateLayout, c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date query parameter is required, format " + dateLayout})
		return
	}

	rate, err := h.Fx.GetRate(c.Request.Context(), trip.ID, date, currency, trip.BaseCurrency)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trip_id":       trip.ID,
		"date":          date.Format(dateLayout),
		"currency":      normalizeCurrency(currency),
		"base_currency": trip.BaseCurrency,
		"rate_to_base":  rate,
	})
}

// --- budget ---

type budgetRequest struct {
	AmountBase string `json:"amount_base" binding:"required"`
}

func (h *Handler) GetBudget(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}
	userID := currentUserID(c)

	spent, err := h.Store.SumUserShares(c.Request.Context(), trip.ID, userID)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	budget, err := h.Store.GetBudget(c.Request.Context(), trip.ID, userID)
	if errors.Is(err, dbt.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{
			"trip_id":    trip.ID,
			"user_id":    userID,
			"spent_base": spent,
		})
		return
	}
	if err != nil {
		abortWithStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trip_id":        trip.ID,
		"user_id":        userID,
		"amount_base":    budget.AmountBase,
		"spent_base":     spent,
		"remaining_base": budget.AmountBase.Sub(spent),
	})
}

func (h *Handler) PutBudget(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}

	var req budgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.AmountBase)
	if err != nil || amount.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_base must be a non-negative decimal"})
		return
	}

	budget := &dbt.Budget{TripID: trip.ID, UserID: currentUserID(c), AmountBase: amount}
	if err := h.Store.UpsertBudget(c.Request.Context(), budget); err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trip_id": trip.ID, "user_id": budget.UserID, "amount_base": budget.AmountBase})
}

// --- settlement ---

func (h *Handler) Settle(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}

	result, err := h.Engine.Settle(c.Request.Context(), trip.ID)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	settlementsTotal.Inc()

	queue := h.MQ.GetTripSettlementMessageQueue()
	if queue != nil {
		err := queue.Publish(mqt.TripSettlementMessage{
			TripID:           trip.ID,
			ParticipantCount: result.ParticipantCount,
			TransferCount:    len(result.Transfers),
			ResidualBase:     result.ResidualBase,
		})
		if err != nil {
			h.Log.Warn("failed to publish settlement event", "trip_id", trip.ID, "error", err)
		}
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetSettlement(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}

	result, err := h.Store.GetSettlementResult(c.Request.Context(), trip.ID)
	if err != nil {
		abortWithStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(currency)
}
