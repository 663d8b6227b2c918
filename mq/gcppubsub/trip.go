// Package gcppubsub implements the trip message queues on GCP Pub/Sub.
// Each subscription filters server-side on the trip id attribute.
package gcppubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"checkmate/mq/mq"
)

const (
	tripIDAttribute = "tripId"
)

// subscriptionInfo holds details about an active Pub/Sub subscription.
type subscriptionInfo struct {
	gcpSubscription *pubsub.Subscription
	cancel          context.CancelFunc
}

// GenericPubSubService provides a generic implementation for GCP Pub/Sub
// operations. It ensures the underlying topic exists.
type GenericPubSubService[M mq.TopicProvider] struct {
	client              *pubsub.Client
	topic               *pubsub.Topic
	activeSubscriptions map[uuid.UUID]*subscriptionInfo
	subscriptionsMutex  sync.Mutex
	ctx                 context.Context
}

func NewGenericPubSubService[M mq.TopicProvider](ctx context.Context, client *pubsub.Client, topicID string) (*GenericPubSubService[M], error) {
	if client == nil {
		return nil, fmt.Errorf("GCP Pub/Sub client is nil")
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existence of topic %s: %w", topicID, err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			return nil, fmt.Errorf("failed to create topic %s: %w", topicID, err)
		}
		log.Printf("Created Pub/Sub topic: %s", topicID)
	}

	return &GenericPubSubService[M]{
		client:              client,
		topic:               topic,
		activeSubscriptions: make(map[uuid.UUID]*subscriptionInfo),
		ctx:                 ctx,
	}, nil
}

// Publish sends a message to the topic with the trip id as an attribute.
func (s *GenericPubSubService[M]) Publish(msg M) error {
	typeName := reflect.TypeOf(msg).Name()
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", typeName, err)
	}

	pubsubMsg := &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			tripIDAttribute: msg.GetTopic().String(),
		},
	}

	result := s.topic.Publish(s.ctx, pubsubMsg)
	_, err = result.Get(s.ctx)
	if err != nil {
		return fmt.Errorf("failed to publish %s to topic %s: %w", typeName, s.topic.ID(), err)
	}
	return nil
}

// Subscribe creates a new filtered subscription on GCP and starts
// listening for messages.
func (s *GenericPubSubService[M]) Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan M, error) {
	subscriptionID := uuid.New()
	typeName := reflect.TypeOf(*new(M)).Name()

	gcpSubName := fmt.Sprintf("sub-%s-%s-%s", typeName, tripID.String(), subscriptionID.String())

	config := pubsub.SubscriptionConfig{
		Topic:            s.topic,
		Filter:           fmt.Sprintf("attributes.%s = \"%s\"", tripIDAttribute, tripID.String()),
		ExpirationPolicy: 24 * time.Hour,
		AckDeadline:      10 * time.Second,
	}

	gcpSub, err := s.client.CreateSubscription(s.ctx, gcpSubName, config)
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to create GCP subscription %s for %s: %w", gcpSubName, typeName, err)
	}

	msgChan := make(chan M, 5)
	receiveCtx, cancel := context.WithCancel(s.ctx)

	s.subscriptionsMutex.Lock()
	s.activeSubscriptions[subscriptionID] = &subscriptionInfo{
		gcpSubscription: gcpSub,
		cancel:          cancel,
	}
	s.subscriptionsMutex.Unlock()

	go func() {
		defer func() {
			s.subscriptionsMutex.Lock()
			delete(s.activeSubscriptions, subscriptionID)
			s.subscriptionsMutex.Unlock()

			// Delete the subscription from GCP to prevent resource leaks.
			if deleteErr := gcpSub.Delete(context.Background()); deleteErr != nil {
				log.Printf("Error deleting GCP subscription %s: %v", gcpSub.ID(), deleteErr)
			}
			close(msgChan)
		}()

		// Receive blocks until the context is cancelled.
		err := gcpSub.Receive(receiveCtx, func(ctx context.Context, pubsubMsg *pubsub.Message) {
			pubsubMsg.Ack()

			var msg M
			if err := json.Unmarshal(pubsubMsg.Data, &msg); err != nil {
				log.Printf("Error unmarshaling %s for %s: %v. Body: %s", typeName, subscriptionID, err, string(pubsubMsg.Data))
				return
			}

			select {
			case msgChan <- msg:
			case <-time.After(2 * time.Second):
				log.Printf("Timeout sending %s to msgChan for %s.", typeName, subscriptionID)
			case <-receiveCtx.Done():
				return
			}
		})

		if err != nil && err != context.Canceled {
			log.Printf("Error in Receive loop for %s subscription %s: %v", typeName, subscriptionID, err)
		}
	}()

	return subscriptionID, msgChan, nil
}

// DeSubscribe stops the message receiver and deletes the subscription from
// GCP.
func (s *GenericPubSubService[M]) DeSubscribe(id uuid.UUID) error {
	s.subscriptionsMutex.Lock()
	info, ok := s.activeSubscriptions[id]
	if ok {
		// The map entry is removed in the goroutine's defer block; here we
		// just trigger the cancellation.
		info.cancel()
	}
	s.subscriptionsMutex.Unlock()

	if !ok {
		return fmt.Errorf("subscription ID %s not found for %s service", id, reflect.TypeOf(*new(M)).Name())
	}
	return nil
}

// Close gracefully shuts down all active subscriptions for this service.
func (s *GenericPubSubService[M]) Close() {
	s.subscriptionsMutex.Lock()
	defer s.subscriptionsMutex.Unlock()

	for _, info := range s.activeSubscriptions {
		info.cancel()
	}
}

// --- tripExpenseMQ implementation ---
type tripExpenseMQ struct {
	genericService *GenericPubSubService[mq.TripExpenseMessage]
	action         mq.Action
}

func NewTripExpenseMessageQueue(ctx context.Context, client *pubsub.Client, action mq.Action) (*tripExpenseMQ, error) {
	topicID := fmt.Sprintf("trip-expense-%s", action.String())
	gs, err := NewGenericPubSubService[mq.TripExpenseMessage](ctx, client, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to create generic service for TripExpense: %w", err)
	}
	return &tripExpenseMQ{genericService: gs, action: action}, nil
}

func (q *tripExpenseMQ) GetAction() mq.Action { return q.action }
func (q *tripExpenseMQ) Publish(msg mq.TripExpenseMessage) error {
	return q.genericService.Publish(msg)
}
func (q *tripExpenseMQ) Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan mq.TripExpenseMessage, error) {
	return q.genericService.Subscribe(tripID)
}
func (q *tripExpenseMQ) DeSubscribe(id uuid.UUID) error { return q.genericService.DeSubscribe(id) }

// --- tripSettlementMQ implementation ---
type tripSettlementMQ struct {
	genericService *GenericPubSubService[mq.TripSettlementMessage]
}

func NewTripSettlementMessageQueue(ctx context.Context, client *pubsub.Client) (*tripSettlementMQ, error) {
	gs, err := NewGenericPubSubService[mq.TripSettlementMessage](ctx, client, "trip-settlement")
	if err != nil {
		return nil, fmt.Errorf("failed to create generic service for TripSettlement: %w", err)
	}
	return &tripSettlementMQ{genericService: gs}, nil
}

func (q *tripSettlementMQ) Publish(msg mq.TripSettlementMessage) error {
	return q.genericService.Publish(msg)
}
func (q *tripSettlementMQ) Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan mq.TripSettlementMessage, error) {
	return q.genericService.Subscribe(tripID)
}
func (q *tripSettlementMQ) DeSubscribe(id uuid.UUID) error { return q.genericService.DeSubscribe(id) }

// --------- trip message queue wrapper implementation ---------

type GCPTripMessageQueueWrapper struct {
	ExpenseMQArray [mq.ActionCnt]*tripExpenseMQ
	SettlementMQ   *tripSettlementMQ
}

func (wrapper *GCPTripMessageQueueWrapper) GetTripExpenseMessageQueue(action mq.Action) mq.TripExpenseMessageQueue {
	if action < 0 || action >= mq.ActionCnt || wrapper.ExpenseMQArray[action] == nil {
		return nil
	}
	return wrapper.ExpenseMQArray[action]
}

func (wrapper *GCPTripMessageQueueWrapper) GetTripSettlementMessageQueue() mq.TripSettlementMessageQueue {
	return wrapper.SettlementMQ
}

// NewGCPTripMessageQueueWrapper creates every topic the app publishes to.
func NewGCPTripMessageQueueWrapper(ctx context.Context, client *pubsub.Client) (mq.TripMessageQueueWrapper, error) {
	wrapper := GCPTripMessageQueueWrapper{}

	for _, action := range []mq.Action{mq.ActionCreate, mq.ActionUpdate, mq.ActionDelete} {
		queue, err := NewTripExpenseMessageQueue(ctx, client, action)
		if err != nil {
			return nil, err
		}
		wrapper.ExpenseMQArray[action] = queue
	}

	settlement, err := NewTripSettlementMessageQueue(ctx, client)
	if err != nil {
		return nil, err
	}
	wrapper.SettlementMQ = settlement

	return &wrapper, nil
}
