package gcppubsub

import (
	"context"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkmate/mq/mq"
)

// These tests need the Pub/Sub emulator and are skipped otherwise.
func testClient(t *testing.T) *pubsub.Client {
	t.Helper()
	if os.Getenv("PUBSUB_EMULATOR_HOST") == "" {
		t.Skip("PUBSUB_EMULATOR_HOST not set, skipping pubsub tests")
	}

	client, err := pubsub.NewClient(context.Background(), "test-project")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestExpenseQueueRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := testClient(t)

	queue, err := NewTripExpenseMessageQueue(ctx, client, mq.ActionCreate)
	require.NoError(t, err)

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
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for expense message")
	}
}

func TestSubscriptionFiltersForeignTrips(t *testing.T) {
	ctx := context.Background()
	client := testClient(t)

	queue, err := NewTripSettlementMessageQueue(ctx, client)
	require.NoError(t, err)

	id, ch, err := queue.Subscribe(uuid.New())
	require.NoError(t, err)
	defer func() { _ = queue.DeSubscribe(id) }()

	require.NoError(t, queue.Publish(mq.TripSettlementMessage{
		TripID:           uuid.New(),
		ParticipantCount: 2,
	}))

	select {
	case got := <-ch:
		t.Fatalf("unexpected message for foreign trip: %+v", got)
	case <-time.After(2 * time.Second):
	}
}
