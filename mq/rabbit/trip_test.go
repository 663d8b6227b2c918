package rabbit

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkmate/mq/mq"
)

// These tests need a running RabbitMQ and are skipped otherwise.
func testConnection(t *testing.T) *RabbitTripMessageQueueWrapper {
	t.Helper()
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		t.Skip("RABBITMQ_URL not set, skipping rabbit tests")
	}

	conn := NewRabbitConnection(url)
	t.Cleanup(func() { _ = conn.Close() })

	wrapper, err := NewRabbitTripMessageQueueWrapper(conn)
	require.NoError(t, err)
	return wrapper.(*RabbitTripMessageQueueWrapper)
}

func TestExpensePublishSubscribe(t *testing.T) {
	wrapper := testConnection(t)
	queue := wrapper.GetTripExpenseMessageQueue(mq.ActionCreate)
	tripID := uuid.New()

	id, ch, err := queue.Subscribe(tripID)
	require.NoError(t, err)
	defer func() { _ = queue.DeSubscribe(id) }()

	msg := mq.TripExpenseMessage{
		TripID:      tripID,
		ExpenseID:   uuid.New(),
		PayerID:     uuid.New(),
		Date:        "2026-07-02",
		AmountBase:  decimal.NewFromInt(420),
		Description: "ramen",
	}
	require.NoError(t, queue.Publish(msg))

	select {
	case got := <-ch:
		assert.Equal(t, msg.ExpenseID, got.ExpenseID)
		assert.True(t, got.AmountBase.Equal(msg.AmountBase))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for expense message")
	}
}

func TestExpenseFilterByTrip(t *testing.T) {
	wrapper := testConnection(t)
	queue := wrapper.GetTripExpenseMessageQueue(mq.ActionDelete)

	id, ch, err := queue.Subscribe(uuid.New())
	require.NoError(t, err)
	defer func() { _ = queue.DeSubscribe(id) }()

	require.NoError(t, queue.Publish(mq.TripExpenseMessage{
		TripID:    uuid.New(),
		ExpenseID: uuid.New(),
	}))

	select {
	case got := <-ch:
		t.Fatalf("unexpected message for foreign trip: %+v", got)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestSettlementPublishSubscribe(t *testing.T) {
	wrapper := testConnection(t)
	queue := wrapper.GetTripSettlementMessageQueue()
	tripID := uuid.New()

	id, ch, err := queue.Subscribe(tripID)
	require.NoError(t, err)
	defer func() { _ = queue.DeSubscribe(id) }()

	require.NoError(t, queue.Publish(mq.TripSettlementMessage{
		TripID:           tripID,
		ParticipantCount: 3,
		TransferCount:    2,
		ResidualBase:     decimal.Zero,
	}))

	select {
	case got := <-ch:
		assert.Equal(t, 3, got.ParticipantCount)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for settlement message")
	}
}
