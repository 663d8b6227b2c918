package mq

import "github.com/google/uuid"

// TopicProvider is implemented by any message that routes by trip id.
type TopicProvider interface {
	GetTopic() uuid.UUID
}

type TripMessageQueueWrapper interface {
	GetTripExpenseMessageQueue(action Action) TripExpenseMessageQueue
	GetTripSettlementMessageQueue() TripSettlementMessageQueue
}

type TripExpenseMessageQueue interface {
	GetAction() Action
	Publish(msg TripExpenseMessage) error
	Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan TripExpenseMessage, error)
	DeSubscribe(id uuid.UUID) error
}

type TripSettlementMessageQueue interface {
	Publish(msg TripSettlementMessage) error
	Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan TripSettlementMessage, error)
	DeSubscribe(id uuid.UUID) error
}
