package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkmate/auth"
	dbt "checkmate/db/db"
	"checkmate/db/mem"
	"checkmate/fx"
	"checkmate/mq/goch"
	mqt "checkmate/mq/mq"
	"checkmate/settle"
)

type stubFetcher struct {
	rate decimal.Decimal
}

func (f *stubFetcher) FetchRate(context.Context, time.Time, string, string) (decimal.Decimal, error) {
	return f.rate, nil
}

type testEnv struct {
	router *gin.Engine
	store  dbt.Store
	mq     mqt.TripMessageQueueWrapper
	jwt    *auth.JWTManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := mem.NewInMemoryStore()
	wrapper := goch.NewGoChanTripMessageQueueWrapper()
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)

	h := &Handler{
		Store:  store,
		JWT:    jwtManager,
		Fx:     fx.NewService(store, &stubFetcher{rate: decimal.RequireFromString("0.21")}, slog.Default()),
		MQ:     wrapper,
		Engine: settle.NewEngine(store, store, store),
		Log:    slog.Default(),
	}

	router := NewRouter(h, ServiceConfig{IsDev: true})
	return &testEnv{router: router, store: store, mq: wrapper, jwt: jwtManager}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

// signupUser registers a user through the API and returns their token.
func (e *testEnv) signupUser(t *testing.T, username string) (uuid.UUID, string) {
	t.Helper()
	w := e.request(t, http.MethodPost, "/auth/signup", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decodeBody(t, w)
	userID, err := uuid.Parse(body["user_id"].(string))
	require.NoError(t, err)
	return userID, body["token"].(string)
}

func (e *testEnv) createTrip(t *testing.T, token string) uuid.UUID {
	t.Helper()
	w := e.request(t, http.MethodPost, "/trips", token, gin.H{
		"name":          "Taipei trip",
		"start_date":    "2026-07-01",
		"end_date":      "2026-07-10",
		"base_currency": "twd",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	tripID, err := uuid.Parse(decodeBody(t, w)["id"].(string))
	require.NoError(t, err)
	return tripID
}

func TestSignupAndLogin(t *testing.T) {
	env := newTestEnv(t)

	env.signupUser(t, "alice")

	t.Run("duplicate username", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/auth/signup", "", gin.H{
			"username": "alice",
			"email":    "other@example.com",
			"password": "password123",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("weak password", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/auth/signup", "", gin.H{
			"username": "bob",
			"email":    "bob@example.com",
			"password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("login", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/auth/login", "", gin.H{
			"username": "alice",
			"password": "password123",
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, decodeBody(t, w)["token"])
	})

	t.Run("wrong password", func(t *testing.T) {
		w := env.request(t, http.MethodPost, "/auth/login", "", gin.H{
			"username": "alice",
			"password": "not-the-password",
		})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.request(t, http.MethodGet, "/trips", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.request(t, http.MethodGet, "/trips", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTripLifecycle(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.signupUser(t, "alice")
	_, bobToken := env.signupUser(t, "bob")
	tripID := env.createTrip(t, aliceToken)

	t.Run("creator sees the trip", func(t *testing.T) {
		w := env.request(t, http.MethodGet, "/trips", aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var trips []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trips))
		require.Len(t, trips, 1)
		assert.Equal(t, "TWD", trips[0]["base_currency"])
	})

	t.Run("non-participant is rejected", func(t *testing.T) {
		w := env.request(t, http.MethodGet, fmt.Sprintf("/trips/%s", tripID), bobToken, nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("add participant by username", func(t *testing.T) {
		w := env.request(t, http.MethodPost, fmt.Sprintf("/trips/%s/participants", tripID), aliceToken,
			gin.H{"username": "bob"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = env.request(t, http.MethodGet, fmt.Sprintf("/trips/%s", tripID), bobToken, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown username", func(t *testing.T) {
		w := env.request(t, http.MethodPost, fmt.Sprintf("/trips/%s/participants", tripID), aliceToken,
			gin.H{"username": "nobody"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestExpenseEndpoints(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.signupUser(t, "alice")
	bobID, bobToken := env.signupUser(t, "bob")
	tripID := env.createTrip(t, aliceToken)

	w := env.request(t, http.MethodPost, fmt.Sprintf("/trips/%s/participants", tripID), aliceToken,
		gin.H{"username": "bob"})
	require.Equal(t, http.StatusCreated, w.Code)

	createQueue := env.mq.GetTripExpenseMessageQueue(mqt.ActionCreate)
	subID, events, err := createQueue.Subscribe(tripID)
	require.NoError(t, err)
	defer func() { _ = createQueue.DeSubscribe(subID) }()

	var expenseID string
	t.Run("create with default split", func(t *testing.T) {
		w := env.request(t, http.MethodPost, fmt.Sprintf("/trips/%s/expenses", tripID), aliceToken, gin.H{
			"date":        "2026-07-02",
			"amount":      "400",
			"currency":    "TWD",
			"description": "night market",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		body := decodeBody(t, w)
		expenseID = body["id"].(string)
		assert.Equal(t, "400", body["amount_base"])
		assert.Equal(t, "alice", body["payer_username"])
		assert.EqualValues(t, 1, body["display_order"])

		shares := body["shares"].([]any)
		require.Len(t, shares, 2)

		select {
		case msg := <-events:
			assert.Equal(t, expenseID, msg.ExpenseID.String())
		case <-time.After(time.Second):
			t.Fatal("expected a create event")
		}
	})

	t.Run("foreign currency is converted", func(t *testing.T) {
		w := env.request(t, http.MethodPost, fmt.Sprintf("/trips/%s/expenses", tripID), bobToken, gin.H{
			"date":        "2026-07-02",
			"amount":      "2000",
			"currency":    "jpy",
			"description": "ramen",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		body := decodeBody(t, w)
		// 2000 * 0.21 with shares rounded to whole units
		assert.Equal(t, "420", body["amount_base"])
		assert.Equal(t, "JPY", body["currency"])
		assert.Equal(t, bobID.String(), body["payer_id"])
		assert.EqualValues(t, 2, body["display_order"])
	})

	t.Run("list by date", func(t *testing.T) {
		w := env.request(t, http.MethodGet, fmt.Sprintf("/trips/%s/expenses?date=2026-07-02", tripID), aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var expenses []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &expenses))
		assert.Len(t, expenses, 2)

		w = env.request(t, http.MethodGet, fmt.Sprintf("/trips/%s/expenses?date=2026-07-03", tripID), aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &expenses))
		assert.Empty(t, expenses)
	})

	t.Run("update publishes only real changes", func(t *testing.T) {
		updateQueue := env.mq.GetTripExpenseMessageQueue(mqt.ActionUpdate)
		updateSubID, updates, err := updateQueue.Subscribe(tripID)
		require.NoError(t, err)
		defer func() { _ = updateQueue.DeSubscribe(updateSubID) }()

		path := fmt.Sprintf("/trips/%s/expenses/%s", tripID, expenseID)
		payload := gin.H{
			"date":        "2026-07-02",
			"amount":      "400",
			"currency":    "TWD",
			"description": "night market",
			"payer_id":    aliceID,
		}

		// Same content, no event.
		w := env.request(t, http.MethodPut, path, aliceToken, payload)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		select {
		case msg := <-updates:
			t.Fatalf("unexpected update event for no-op: %+v", msg)
		case <-time.After(100 * time.Millisecond):
		}

		payload["description"] = "night market round two"
		w = env.request(t, http.MethodPut, path, aliceToken, payload)
		require.Equal(t, http.StatusOK, w.Code)
		select {
		case msg := <-updates:
			assert.Equal(t, "night market round two", msg.Description)
		case <-time.After(time.Second):
			t.Fatal("expected an update event")
		}
	})

	t.Run("reorder", func(t *testing.T) {
		w := env.request(t, http.MethodPut,
			fmt.Sprintf("/trips/%s/expenses/%s/order", tripID, expenseID), aliceToken,
			gin.H{"display_order": 5})
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		deleteQueue := env.mq.GetTripExpenseMessageQueue(mqt.ActionDelete)
		deleteSubID, deletes, err := deleteQueue.Subscribe(tripID)
		require.NoError(t, err)
		defer func() { _ = deleteQueue.DeSubscribe(deleteSubID) }()

		w := env.request(t, http.MethodDelete,
			fmt.Sprintf("/trips/%s/expenses/%s", tripID, expenseID), aliceToken, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		select {
		case msg := <-deletes:
			assert.Equal(t, expenseID, msg.ExpenseID.String())
		case <-time.After(time.Second):
			t.Fatal("expected a delete event")
		}

		w = env.request(t, http.MethodDelete,
			fmt.Sprintf("/trips/%s/expenses/%s", tripID, expenseID), aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestBudgetEndpoints(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.signupUser(t, "alice")
	tripID := env.createTrip(t, aliceToken)

	w := env.request(t, http.MethodPost, fmt.Sprintf("/trips/%s/expenses", tripID), aliceToken, gin.H{
		"date":        "2026-07-02",
		"amount":      "300",
		"currency":    "TWD",
		"description": "hotel",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("no budget yet", func(t *testing.T) {
		w := env.request(t, http.MethodGet, fmt.Sprintf("/trips/%s/budget", tripID), aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "300", body["spent_base"])
		assert.NotContains(t, body, "amount_base")
	})

	t.Run("set and read back", func(t *testing.T) {
		w := env.request(t, http.MethodPut, fmt.Sprintf("/trips/%s/budget", tripID), aliceToken,
			gin.H{"amount_base": "5000"})
		require.Equal(t, http.StatusOK, w.Code)

		w = env.request(t, http.MethodGet, fmt.Sprintf("/trips/%s/budget", tripID), aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "5000", body["amount_base"])
		assert.Equal(t, "300", body["spent_base"])
		assert.Equal(t, "4700", body["remaining_base"])
	})

	t.Run("negative budget rejected", func(t *testing.T) {
		w := env.request(t, http.MethodPut, fmt.Sprintf("/trips/%s/budget", tripID), aliceToken,
			gin.H{"amount_base": "-1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestFxEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, aliceToken := env.signupUser(t, "alice")
	tripID := env.createTrip(t, aliceToken)

	w := env.request(t, http.MethodGet,
		fmt.Sprintf("/trips/%s/fx?date=2026-07-02&currency=jpy", tripID), aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decodeBody(t, w)
	assert.Equal(t, "JPY", body["currency"])
	assert.Equal(t, "TWD", body["base_currency"])
	assert.Equal(t, "0.21", body["rate_to_base"])

	w = env.request(t, http.MethodGet, fmt.Sprintf("/trips/%s/fx?currency=jpy", tripID), aliceToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettlementEndpoints(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.signupUser(t, "alice")
	bobID, bobToken := env.signupUser(t, "bob")
	tripID := env.createTrip(t, aliceToken)

	w := env.request(t, http.MethodPost, fmt.Sprintf("/trips/%s/participants", tripID), aliceToken,
		gin.H{"username": "bob"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.request(t, http.MethodPost, fmt.Sprintf("/trips/%s/expenses", tripID), aliceToken, gin.H{
		"date":        "2026-07-02",
		"amount":      "400",
		"currency":    "TWD",
		"description": "dinner",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("no result before settling", func(t *testing.T) {
		w := env.request(t, http.MethodGet, fmt.Sprintf("/trips/%s/settlement", tripID), aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	settlementQueue := env.mq.GetTripSettlementMessageQueue()
	subID, settlements, err := settlementQueue.Subscribe(tripID)
	require.NoError(t, err)
	defer func() { _ = settlementQueue.DeSubscribe(subID) }()

	t.Run("settle", func(t *testing.T) {
		w := env.request(t, http.MethodPost, fmt.Sprintf("/trips/%s/settlement", tripID), bobToken, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result settle.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, 2, result.ParticipantCount)
		require.Len(t, result.Transfers, 1)
		assert.Equal(t, bobID, result.Transfers[0].FromUserID)
		assert.Equal(t, aliceID, result.Transfers[0].ToUserID)
		assert.True(t, result.Transfers[0].AmountBase.Equal(decimal.NewFromInt(200)))

		select {
		case msg := <-settlements:
			assert.Equal(t, 1, msg.TransferCount)
		case <-time.After(time.Second):
			t.Fatal("expected a settlement event")
		}
	})

	t.Run("result is readable and trip is settled", func(t *testing.T) {
		w := env.request(t, http.MethodGet, fmt.Sprintf("/trips/%s/settlement", tripID), aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = env.request(t, http.MethodGet, fmt.Sprintf("/trips/%s", tripID), aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["is_settled"])
		assert.Equal(t, "Settled", body["status"])
	})

	t.Run("settled trip blocks expense mutations", func(t *testing.T) {
		w := env.request(t, http.MethodPost, fmt.Sprintf("/trips/%s/expenses", tripID), aliceToken, gin.H{
			"date":        "2026-07-03",
			"amount":      "100",
			"currency":    "TWD",
			"description": "late addition",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}
