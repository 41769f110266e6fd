package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"dinein-service/internal/dining"
)

const (
	EventsExchange = "dinein.events"

	PaymentCallbacksExchange = "dinein.payment_callbacks"
	PaymentCallbacksQueue    = "dinein.payment_callbacks.confirm"
	PaymentCallbacksDLQ      = "dinein.payment_callbacks.dlq"
	PaymentCallbacksRK       = "confirm"
	PaymentCallbacksDeadRK   = "dead"
)

// DineInTopology is the lifecycle events exchange plus the payment callback queue and its
// dead-letter queue.
func DineInTopology() Topology {
	return Topology{
		Exchanges: []Exchange{
			{Name: EventsExchange, Kind: amqp.ExchangeTopic},
			{Name: PaymentCallbacksExchange, Kind: amqp.ExchangeDirect},
		},
		Queues: []DurableQueue{
			{
				Name:     PaymentCallbacksDLQ,
				Bindings: []Binding{{Exchange: PaymentCallbacksExchange, RoutingKey: PaymentCallbacksDeadRK}},
			},
			{
				Name: PaymentCallbacksQueue,
				Args: amqp.Table{
					"x-dead-letter-exchange":    PaymentCallbacksExchange,
					"x-dead-letter-routing-key": PaymentCallbacksDeadRK,
				},
				Bindings: []Binding{{Exchange: PaymentCallbacksExchange, RoutingKey: PaymentCallbacksRK}},
			},
		},
	}
}

func EnsureTopology(qc *Client) error {
	if qc == nil {
		return nil
	}
	return qc.Declare(DineInTopology())
}

type jsonPublisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, payload any) error
}

// EventPublisher sends dining lifecycle events to the events exchange, routed by event type.
type EventPublisher struct {
	pub jsonPublisher
}

func NewEventPublisher(pub jsonPublisher) *EventPublisher {
	return &EventPublisher{pub: pub}
}

func (p *EventPublisher) Publish(ctx context.Context, evt dining.Event) error {
	return p.pub.PublishJSON(ctx, EventsExchange, evt.Type, evt)
}

// PaymentCallback is the message a bank gateway bridge posts when a QR payment settles.
type PaymentCallback struct {
	PaymentID int64  `json:"paymentId"`
	Reference string `json:"reference,omitempty"`
}

type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, paymentID int64) (dining.Reconciliation, error)
}

// PaymentCallbackHandler confirms payments from callback messages. Redelivered callbacks are
// harmless because confirmation of a paid payment is a no-op. Malformed messages and domain
// rejections are permanent; storage failures are retried.
func PaymentCallbackHandler(svc paymentConfirmer) HandlerFunc {
	return func(ctx context.Context, body []byte) error {
		var cb PaymentCallback
		if err := json.Unmarshal(body, &cb); err != nil {
			return Permanent(fmt.Errorf("decode payment callback: %w", err))
		}
		if cb.PaymentID <= 0 {
			return Permanent(fmt.Errorf("payment callback without paymentId"))
		}
		if _, err := svc.ConfirmPayment(ctx, cb.PaymentID); err != nil {
			var de *dining.Error
			if errors.As(err, &de) && de.Kind != dining.KindInternal {
				return Permanent(err)
			}
			return err
		}
		return nil
	}
}
