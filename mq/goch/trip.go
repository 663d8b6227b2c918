// Package goch implements the trip message queues on in-process Go
// channels. It is the default backend for tests and single-node runs.
package goch

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"checkmate/mq/mq"
)

const defaultBufferSize = 16

// --- Error Definitions ---
type QueueError string

func (e QueueError) Error() string {
	return string(e)
}

const (
	ErrQueueStopped QueueError = "message queue is stopped"
)

type fanOutSubscriber[M any] struct {
	tripID uuid.UUID
	ch     chan M
}

// fanOutQueueCore fans published messages out to every subscriber whose
// trip id matches the message topic. A slow subscriber drops messages
// instead of blocking the publisher.
type fanOutQueueCore[M mq.TopicProvider] struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*fanOutSubscriber[M]
	bufferSize  int
	stopped     bool
}

func newFanOutQueueCore[M mq.TopicProvider](bufferSize int) *fanOutQueueCore[M] {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &fanOutQueueCore[M]{
		subscribers: make(map[uuid.UUID]*fanOutSubscriber[M]),
		bufferSize:  bufferSize,
	}
}

func (c *fanOutQueueCore[M]) Publish(msg M) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stopped {
		return ErrQueueStopped
	}

	topic := msg.GetTopic()
	for _, sub := range c.subscribers {
		if sub.tripID != topic {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			// subscriber buffer full, message dropped
		}
	}
	return nil
}

func (c *fanOutQueueCore[M]) Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan M, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return uuid.Nil, nil, ErrQueueStopped
	}

	id := uuid.New()
	sub := &fanOutSubscriber[M]{
		tripID: tripID,
		ch:     make(chan M, c.bufferSize),
	}
	c.subscribers[id] = sub
	return id, sub.ch, nil
}

func (c *fanOutQueueCore[M]) DeSubscribe(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subscribers[id]
	if !ok {
		return fmt.Errorf("subscriber with ID %s not found", id)
	}
	delete(c.subscribers, id)
	close(sub.ch)
	return nil
}

// Stop closes every subscriber channel and rejects further use.
func (c *fanOutQueueCore[M]) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	for id, sub := range c.subscribers {
		delete(c.subscribers, id)
		close(sub.ch)
	}
}

// ChannelTripExpenseMessageQueue implements TripExpenseMessageQueue using
// an in-process fan-out.
type ChannelTripExpenseMessageQueue struct {
	action mq.Action
	core   *fanOutQueueCore[mq.TripExpenseMessage]
}

func NewChannelTripExpenseMessageQueue(action mq.Action, bufferSize int) *ChannelTripExpenseMessageQueue {
	return &ChannelTripExpenseMessageQueue{
		action: action,
		core:   newFanOutQueueCore[mq.TripExpenseMessage](bufferSize),
	}
}

func (q *ChannelTripExpenseMessageQueue) GetAction() mq.Action {
	return q.action
}

func (q *ChannelTripExpenseMessageQueue) Publish(msg mq.TripExpenseMessage) error {
	return q.core.Publish(msg)
}

func (q *ChannelTripExpenseMessageQueue) Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan mq.TripExpenseMessage, error) {
	return q.core.Subscribe(tripID)
}

func (q *ChannelTripExpenseMessageQueue) DeSubscribe(id uuid.UUID) error {
	return q.core.DeSubscribe(id)
}

// ChannelTripSettlementMessageQueue implements TripSettlementMessageQueue
// using an in-process fan-out.
type ChannelTripSettlementMessageQueue struct {
	core *fanOutQueueCore[mq.TripSettlementMessage]
}

func NewChannelTripSettlementMessageQueue(bufferSize int) *ChannelTripSettlementMessageQueue {
	return &ChannelTripSettlementMessageQueue{
		core: newFanOutQueueCore[mq.TripSettlementMessage](bufferSize),
	}
}

func (q *ChannelTripSettlementMessageQueue) Publish(msg mq.TripSettlementMessage) error {
	return q.core.Publish(msg)
}

func (q *ChannelTripSettlementMessageQueue) Subscribe(tripID uuid.UUID) (uuid.UUID, <-chan mq.TripSettlementMessage, error) {
	return q.core.Subscribe(tripID)
}

func (q *ChannelTripSettlementMessageQueue) DeSubscribe(id uuid.UUID) error {
	return q.core.DeSubscribe(id)
}

// GoChanTripMessageQueueWrapper implements the TripMessageQueueWrapper
// interface on channel queues.
type GoChanTripMessageQueueWrapper struct {
	ExpenseMQArray [mq.ActionCnt]mq.TripExpenseMessageQueue
	SettlementMQ   mq.TripSettlementMessageQueue
}

func (wrapper *GoChanTripMessageQueueWrapper) GetTripExpenseMessageQueue(action mq.Action) mq.TripExpenseMessageQueue {
	if action < 0 || action >= mq.ActionCnt {
		return nil
	}
	return wrapper.ExpenseMQArray[action]
}

func (wrapper *GoChanTripMessageQueueWrapper) GetTripSettlementMessageQueue() mq.TripSettlementMessageQueue {
	return wrapper.SettlementMQ
}

// NewGoChanTripMessageQueueWrapper creates a new instance of GoChanTripMessageQueueWrapper.
func NewGoChanTripMessageQueueWrapper() mq.TripMessageQueueWrapper {
	wrapper := GoChanTripMessageQueueWrapper{}
	// expense needs create, update and delete
	wrapper.ExpenseMQArray[mq.ActionCreate] = NewChannelTripExpenseMessageQueue(mq.ActionCreate, 0)
	wrapper.ExpenseMQArray[mq.ActionUpdate] = NewChannelTripExpenseMessageQueue(mq.ActionUpdate, 0)
	wrapper.ExpenseMQArray[mq.ActionDelete] = NewChannelTripExpenseMessageQueue(mq.ActionDelete, 0)
	// settlement is a single event stream
	wrapper.SettlementMQ = NewChannelTripSettlementMessageQueue(0)

	return &wrapper
}
