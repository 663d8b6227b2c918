package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	mqt "checkmate/mq/mq"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// origins are unrestricted; auth happens via the bearer token
		return true
	},
}

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// tripEvent is the wire envelope for the per-trip feed.
type tripEvent struct {
	Type       string                     `json:"type"`
	Expense    *mqt.TripExpenseMessage    `json:"expense,omitempty"`
	Settlement *mqt.TripSettlementMessage `json:"settlement,omitempty"`
}

// TripEventFeed upgrades the connection and streams the trip's expense and
// settlement events until the client disconnects.
func (h *Handler) TripEventFeed(c *gin.Context) {
	trip, ok := h.requireTripAccess(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.Log.Warn("websocket upgrade failed", "trip_id", trip.ID, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events := make(chan tripEvent, 16)

	for _, action := range []mqt.Action{mqt.ActionCreate, mqt.ActionUpdate, mqt.ActionDelete} {
		queue := h.MQ.GetTripExpenseMessageQueue(action)
		if queue == nil {
			continue
		}
		eventType := "expense." + action.String()

		out := make(chan tripEvent, 4)
		mqt.SubscribeProcessor(trip.ID, ctx, queue,
			func(msg mqt.TripExpenseMessage) (tripEvent, bool, error) {
				m := msg
				return tripEvent{Type: eventType, Expense: &m}, false, nil
			},
			out)
		go forwardEvents(ctx, out, events)
	}

	if queue := h.MQ.GetTripSettlementMessageQueue(); queue != nil {
		out := make(chan tripEvent, 4)
		mqt.SubscribeProcessor(trip.ID, ctx, queue,
			func(msg mqt.TripSettlementMessage) (tripEvent, bool, error) {
				m := msg
				return tripEvent{Type: "settlement.settled", Settlement: &m}, false, nil
			},
			out)
		go forwardEvents(ctx, out, events)
	}

	// Reader loop: the client sends nothing meaningful, but reading is how
	// we notice the connection closing.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func forwardEvents(ctx context.Context, in <-chan tripEvent, out chan<- tripEvent) {
	for {
		select {
		case event, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
