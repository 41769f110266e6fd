package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client owns one AMQP connection and channel. Publishes are serialized because a channel is
// not safe for concurrent writers.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
}

func New(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &Client{conn: conn, ch: ch}, nil
}

func (c *Client) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Exchange is a durable exchange. Kind defaults to topic.
type Exchange struct {
	Name string
	Kind string
}

// Binding routes RoutingKey on Exchange into the enclosing queue.
type Binding struct {
	Exchange   string
	RoutingKey string
}

// DurableQueue is a durable queue with its declare arguments and bindings.
type DurableQueue struct {
	Name     string
	Args     amqp.Table
	Bindings []Binding
}

// Topology lists what Declare creates. Exchanges are declared before queues so bindings can
// refer to them.
type Topology struct {
	Exchanges []Exchange
	Queues    []DurableQueue
}

// Declare creates the topology idempotently.
func (c *Client) Declare(t Topology) error {
	for _, ex := range t.Exchanges {
		kind := ex.Kind
		if kind == "" {
			kind = amqp.ExchangeTopic
		}
		if err := c.ch.ExchangeDeclare(ex.Name, kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.Name, err)
		}
	}
	for _, q := range t.Queues {
		if _, err := c.ch.QueueDeclare(q.Name, true, false, false, false, q.Args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
		for _, b := range q.Bindings {
			if err := c.ch.QueueBind(q.Name, b.RoutingKey, b.Exchange, false, nil); err != nil {
				return fmt.Errorf("bind %s to %s/%s: %w", q.Name, b.Exchange, b.RoutingKey, err)
			}
		}
	}
	return nil
}

// PublishJSON sends payload as a persistent JSON message.
func (c *Client) PublishJSON(ctx context.Context, exchange, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", routingKey, err)
	}

	err = c.publish(ctx, exchange, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s/%s: %w", exchange, routingKey, err)
	}
	return nil
}

func (c *Client) publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
}
