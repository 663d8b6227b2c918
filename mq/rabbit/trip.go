// Package rabbit implements the trip message queues on RabbitMQ, for
// deployments that fan events out across several backend instances.
package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"checkmate/mq/mq"
)

const (
	// All trip-related events go through this exchange.
	exchangeName = "trip_events_exchange"
)

const (
	expenseCreateRoutingKey     = "expense.create"
	expenseUpdateRoutingKey     = "expense.update"
	expenseDeleteRoutingKey     = "expense.delete"
	settlementSettledRoutingKey = "settlement.settled"
)

func expenseRoutingKey(action mq.Action) string {
	switch action {
	case mq.ActionCreate:
		return expenseCreateRoutingKey
	case mq.ActionUpdate:
		return expenseUpdateRoutingKey
	case mq.ActionDelete:
		return expenseDeleteRoutingKey
	}
	return ""
}

type rabbitConsumer[M mq.TopicProvider] struct {
	tripID uuid.UUID
	ch     chan M
}

// rabbitQueueCore holds the channel plumbing shared by the expense and
// settlement queues. Each subscriber gets its own consumer on the queue,
// filtered by trip id on delivery.
type rabbitQueueCore[M mq.TopicProvider] struct {
	conn       *amqp091.Connection
	channel    *amqp091.Channel
	queueName  string
	routingKey string
	mu         sync.RWMutex
	consumers  map[uuid.UUID]*rabbitConsumer[M]
}

func newRabbitQueueCore[M mq.TopicProvider](conn *amqp091.Connection, queueName, routingKey string) (*rabbitQueueCore[M], error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := DeclareQueueAndExchange(ch, queueName, exchangeName, routingKey); err != nil {
		ch.Close()
		return nil, err
	}

	return &rabbitQueueCore[M]{
		conn:       conn,
		channel:    ch,
		queueName:  queueName,
		routingKey: routingKey,
		consumers:  make(map[uuid.UUID]*rabbitConsumer[M]),
	}, nil
}

func (q *rabbitQueueCore[M]) Publish(msg M) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = q.channel.PublishWithContext(ctx,
		exchangeName, // exchange
		q.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (q *rabbitQueueCore[M]) Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan M, error) {
	msgs, err := q.channel.Consume(
		q.queueName, // queue
		"",          // consumer
		true,        // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	subscriberID := uuid.New()
	consumer := &rabbitConsumer[M]{
		tripID: tripID,
		ch:     make(chan M),
	}

	q.mu.Lock()
	q.consumers[subscriberID] = consumer
	q.mu.Unlock()

	go func() {
		defer func() {
			q.mu.Lock()
			if c, ok := q.consumers[subscriberID]; ok {
				close(c.ch)
				delete(q.consumers, subscriberID)
			}
			q.mu.Unlock()
		}()

		for d := range msgs {
			var msg M
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				log.Printf("Failed to unmarshal message on %s: %v", q.queueName, err)
				continue
			}
			if msg.GetTopic() != tripID {
				continue
			}

			q.mu.RLock()
			c, ok := q.consumers[subscriberID]
			q.mu.RUnlock()
			if !ok {
				// consumer was unsubscribed while the message was in flight
				return
			}

			select {
			case c.ch <- msg:
			case <-time.After(1 * time.Second):
				log.Printf("Timeout sending message to consumer %s. Skipping.", subscriberID)
			}
		}
	}()

	return subscriberID, consumer.ch, nil
}

func (q *rabbitQueueCore[M]) DeSubscribe(subscriberID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if c, ok := q.consumers[subscriberID]; ok {
		delete(q.consumers, subscriberID)
		close(c.ch)
		return nil
	}
	return fmt.Errorf("consumer with ID %s not found for queue %s", subscriberID, q.queueName)
}

// rabbitTripExpenseMessageQueue implements mq.TripExpenseMessageQueue.
type rabbitTripExpenseMessageQueue struct {
	action mq.Action
	core   *rabbitQueueCore[mq.TripExpenseMessage]
}

func NewRabbitTripExpenseMessageQueue(action mq.Action, conn *amqp091.Connection) (mq.TripExpenseMessageQueue, error) {
	queueName := fmt.Sprintf("trip_expense_%s_queue", action)
	core, err := newRabbitQueueCore[mq.TripExpenseMessage](conn, queueName, expenseRoutingKey(action))
	if err != nil {
		return nil, err
	}
	return &rabbitTripExpenseMessageQueue{action: action, core: core}, nil
}

func (q *rabbitTripExpenseMessageQueue) GetAction() mq.Action { return q.action }
func (q *rabbitTripExpenseMessageQueue) Publish(msg mq.TripExpenseMessage) error {
	return q.core.Publish(msg)
}
func (q *rabbitTripExpenseMessageQueue) Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan mq.TripExpenseMessage, error) {
	return q.core.Subscribe(tripID)
}
func (q *rabbitTripExpenseMessageQueue) DeSubscribe(id uuid.UUID) error {
	return q.core.DeSubscribe(id)
}

// rabbitTripSettlementMessageQueue implements mq.TripSettlementMessageQueue.
type rabbitTripSettlementMessageQueue struct {
	core *rabbitQueueCore[mq.TripSettlementMessage]
}

func NewRabbitTripSettlementMessageQueue(conn *amqp091.Connection) (mq.TripSettlementMessageQueue, error) {
	core, err := newRabbitQueueCore[mq.TripSettlementMessage](conn, "trip_settlement_queue", settlementSettledRoutingKey)
	if err != nil {
		return nil, err
	}
	return &rabbitTripSettlementMessageQueue{core: core}, nil
}

func (q *rabbitTripSettlementMessageQueue) Publish(msg mq.TripSettlementMessage) error {
	return q.core.Publish(msg)
}
func (q *rabbitTripSettlementMessageQueue) Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan mq.TripSettlementMessage, error) {
	return q.core.Subscribe(tripID)
}
func (q *rabbitTripSettlementMessageQueue) DeSubscribe(id uuid.UUID) error {
	return q.core.DeSubscribe(id)
}

// RabbitTripMessageQueueWrapper implements the TripMessageQueueWrapper
// interface on RabbitMQ queues.
type RabbitTripMessageQueueWrapper struct {
	ExpenseMQArray [mq.ActionCnt]mq.TripExpenseMessageQueue
	SettlementMQ   mq.TripSettlementMessageQueue
}

func (wrapper *RabbitTripMessageQueueWrapper) GetTripExpenseMessageQueue(action mq.Action) mq.TripExpenseMessageQueue {
	if action < 0 || action >= mq.ActionCnt {
		return nil
	}
	return wrapper.ExpenseMQArray[action]
}

func (wrapper *RabbitTripMessageQueueWrapper) GetTripSettlementMessageQueue() mq.TripSettlementMessageQueue {
	return wrapper.SettlementMQ
}

// NewRabbitTripMessageQueueWrapper declares every queue the app needs on
// the given connection.
func NewRabbitTripMessageQueueWrapper(conn *amqp091.Connection) (mq.TripMessageQueueWrapper, error) {
	wrapper := RabbitTripMessageQueueWrapper{}

	for _, action := range []mq.Action{mq.ActionCreate, mq.ActionUpdate, mq.ActionDelete} {
		queue, err := NewRabbitTripExpenseMessageQueue(action, conn)
		if err != nil {
			return nil, err
		}
		wrapper.ExpenseMQArray[action] = queue
	}

	settlement, err := NewRabbitTripSettlementMessageQueue(conn)
	if err != nil {
		return nil, err
	}
	wrapper.SettlementMQ = settlement

	return &wrapper, nil
}
