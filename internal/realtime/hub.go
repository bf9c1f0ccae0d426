package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// EventOrderStatus carries an OrderStatus payload.
	EventOrderStatus = "order_status"
)

// OrderStatus is pushed to clients watching an order.
type OrderStatus struct {
	OrderID  string `json:"orderId"`
	Status   string `json:"status"`
	Enrolled bool   `json:"enrolled"`
}

// Hub maintains order_id -> set of connections and broadcasts status changes.
// Uses Redis pub/sub for horizontal scaling: the callback may land on any instance.
type Hub struct {
	orders   map[string]*room
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// room is the set of local watchers of one order. ready is closed once the
// order's subscription has settled; err is set before that when it failed.
type room struct {
	clients map[string]*Client
	cancel  func()
	ready   chan struct{}
	err     error
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishOrderEvent(ctx context.Context, orderID, event string, payload []byte) error
}

// RedisSubscriber subscribes to order channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeOrder(orderID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. Both Redis sides may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		orders:   make(map[string]*room),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to an order room. The first client starts the order's Redis
// subscription; later clients wait for it. When it fails the room is dropped and every
// client that joined it gets the error.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	r, exists := h.orders[c.OrderID]
	if !exists {
		r = &room{clients: make(map[string]*Client), ready: make(chan struct{})}
		h.orders[c.OrderID] = r
	}
	r.clients[c.ID] = c
	h.mu.Unlock()

	if exists {
		<-r.ready
		return r.err
	}
	if err := h.subscribe(c.OrderID, r); err != nil {
		h.logger.Warn("order subscription failed", zap.String("order_id", c.OrderID), zap.Error(err))
		return err
	}
	h.logger.Debug("client watching order", zap.String("client_id", c.ID), zap.String("order_id", c.OrderID))
	return nil
}

// subscribe runs without the hub lock so a slow Redis never blocks other rooms.
func (h *Hub) subscribe(orderID string, r *room) error {
	var cancel func()
	var err error
	if h.redisSub != nil {
		cancel, err = h.redisSub.SubscribeOrder(orderID, func(event string, payload []byte) {
			h.BroadcastToOrder(orderID, event, json.RawMessage(payload))
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	defer close(r.ready)
	live := h.orders[orderID] == r
	if err != nil {
		r.err = fmt.Errorf("subscribe to order %s: %w", orderID, err)
		if live {
			delete(h.orders, orderID)
		}
		return r.err
	}
	if !live {
		// Everyone left while subscribing.
		if cancel != nil {
			cancel()
		}
		return nil
	}
	r.cancel = cancel
	return nil
}

// Unregister removes a client. Cancels the Redis subscription when the last watcher leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if r, ok := h.orders[c.OrderID]; ok {
		if _, member := r.clients[c.ID]; member {
			delete(r.clients, c.ID)
			if len(r.clients) == 0 {
				delete(h.orders, c.OrderID)
				if r.cancel != nil {
					r.cancel()
				}
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left order", zap.String("client_id", c.ID), zap.String("order_id", c.OrderID))
}

// BroadcastToOrder sends a message to all local clients watching orderID.
func (h *Hub) BroadcastToOrder(orderID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.orders[orderID]
	if !ok {
		return
	}
	for _, c := range r.clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// PublishOrderStatus announces a status change. With Redis configured it only publishes; the
// subscription callback delivers to local clients on every instance, including this one.
func (h *Hub) PublishOrderStatus(ctx context.Context, orderID, status string, enrolled bool) error {
	payload := OrderStatus{OrderID: orderID, Status: status, Enrolled: enrolled}
	if h.redis == nil {
		h.BroadcastToOrder(orderID, EventOrderStatus, payload)
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.redis.PublishOrderEvent(ctx, orderID, EventOrderStatus, data)
}

// Watchers returns the number of local clients watching orderID.
func (h *Hub) Watchers(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.orders[orderID]; ok {
		return len(r.clients)
	}
	return 0
}
