// README: Offer and assignment event publishing over RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"caredispatch/internal/modules/order"
	"caredispatch/internal/types"
)

const exchange = "dispatch.orders"

const (
	keyOffered  = "order.offered"
	keyAssigned = "order.assigned"
	keyTimeout  = "order.timeout"
)

// event is the wire payload; consumers are worker apps and ops tooling.
type event struct {
	OrderID    types.ID     `json:"order_id"`
	CustomerID types.ID     `json:"customer_id"`
	Status     order.Status `json:"status"`
	WorkerID   types.ID     `json:"worker_id,omitempty"`
	WorkerIDs  []types.ID   `json:"worker_ids,omitempty"`
	Deadline   *time.Time   `json:"acceptance_deadline,omitempty"`
	At         time.Time    `json:"at"`
}

// AMQPNotifier publishes order events on a topic exchange. Publishing is
// best-effort: a broker outage degrades to logged warnings, order flow is
// never blocked on it.
type AMQPNotifier struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *slog.Logger
}

func NewAMQPNotifier(url string, log *slog.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPNotifier{conn: conn, ch: ch, log: log}, nil
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch != nil && !n.ch.IsClosed() {
		_ = n.ch.Close()
	}
	if n.conn != nil && !n.conn.IsClosed() {
		return n.conn.Close()
	}
	return nil
}

func (n *AMQPNotifier) OrderOffered(ctx context.Context, o *order.Order) {
	ids := make([]types.ID, 0, len(o.Offers))
	for _, off := range o.Offers {
		ids = append(ids, off.WorkerID)
	}
	n.publish(ctx, keyOffered, event{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		WorkerIDs:  ids,
		Deadline:   o.AcceptanceDeadline,
		At:         time.Now(),
	})
}

func (n *AMQPNotifier) OrderAssigned(ctx context.Context, o *order.Order) {
	e := event{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		At:         time.Now(),
	}
	if o.AssignedWorker != nil {
		e.WorkerID = o.AssignedWorker.WorkerID
	}
	n.publish(ctx, keyAssigned, e)
}

func (n *AMQPNotifier) OrderTimedOut(ctx context.Context, o *order.Order) {
	n.publish(ctx, keyTimeout, event{
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Status:     o.Status,
		At:         time.Now(),
	})
}

func (n *AMQPNotifier) publish(ctx context.Context, key string, e event) {
	body, err := json.Marshal(e)
	if err != nil {
		n.log.Warn("notify marshal failed", "key", key, "error", err)
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.ch == nil || n.ch.IsClosed() {
		n.log.Warn("notify channel closed, event dropped", "key", key, "order_id", e.OrderID)
		return
	}
	err = n.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		n.log.Warn("notify publish failed", "key", key, "order_id", e.OrderID, "error", err)
	}
}
