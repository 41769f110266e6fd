package queue

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type HandlerFunc func(ctx context.Context, body []byte) error

const retryHeader = "x-retry-count"

var errConsumerClosed = errors.New("consumer closed")

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error that retrying cannot fix; the message is dead-lettered at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// ConsumeWithRetry handles deliveries until ctx is cancelled or the channel closes. A failed
// message is republished to the same queue with an incremented retry header. After maxRetries,
// or on a Permanent error, it is rejected without requeue and the queue's dead-letter exchange
// takes it.
func (c *Client) ConsumeWithRetry(ctx context.Context, queue string, handler HandlerFunc, maxRetries int, retryDelay time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	deliveries, err := c.ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	log := logger.With(zap.String("queue", queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errConsumerClosed
			}
			if err := c.handleDelivery(ctx, queue, d, handler, maxRetries, retryDelay, log); err != nil {
				return err
			}
		}
	}
}

// handleDelivery settles one delivery. It only returns an error when ctx ends mid-retry.
func (c *Client) handleDelivery(ctx context.Context, queue string, d amqp.Delivery, handler HandlerFunc, maxRetries int, retryDelay time.Duration, log *zap.Logger) error {
	herr := handler(ctx, d.Body)
	if herr == nil {
		_ = d.Ack(false)
		return nil
	}

	attempt := getRetryCount(d.Headers)
	if IsPermanent(herr) || attempt >= maxRetries {
		log.Warn("message dead-lettered", zap.Int("retries", attempt), zap.Error(herr))
		_ = d.Nack(false, false)
		return nil
	}
	attempt++
	log.Info("message retry scheduled", zap.Int("retry", attempt), zap.Error(herr))

	timer := time.NewTimer(retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		_ = d.Nack(false, true)
		return ctx.Err()
	case <-timer.C:
	}

	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retryHeader] = int32(attempt)

	err := c.publish(ctx, "", queue, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Timestamp:    time.Now().UTC(),
		Body:         d.Body,
	})
	if err != nil {
		log.Error("retry republish failed", zap.Error(err))
		_ = d.Nack(false, true)
		return nil
	}
	_ = d.Ack(false)
	return nil
}

func getRetryCount(headers amqp.Table) int {
	switch n := headers[retryHeader].(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case int16:
		return int(n)
	default:
		return 0
	}
}
