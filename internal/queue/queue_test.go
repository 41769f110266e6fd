package queue

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinein-service/internal/dining"
)

func TestGetRetryCount(t *testing.T) {
	assert.Equal(t, 0, getRetryCount(nil))
	assert.Equal(t, 0, getRetryCount(amqp.Table{"other": int32(3)}))
	assert.Equal(t, 2, getRetryCount(amqp.Table{retryHeader: int32(2)}))
	assert.Equal(t, 4, getRetryCount(amqp.Table{retryHeader: int64(4)}))
	assert.Equal(t, 0, getRetryCount(amqp.Table{retryHeader: "1"}))
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	base := errors.New("bad body")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}

type publishCall struct {
	exchange, routingKey string
	payload              any
}

type fakePublisher struct{ calls []publishCall }

func (f *fakePublisher) PublishJSON(_ context.Context, exchange, routingKey string, payload any) error {
	f.calls = append(f.calls, publishCall{exchange, routingKey, payload})
	return nil
}

func TestEventPublisherRoutesByType(t *testing.T) {
	fp := &fakePublisher{}
	evt := dining.Event{Type: dining.EventPaymentConfirmed, SessionID: 7}
	require.NoError(t, NewEventPublisher(fp).Publish(context.Background(), evt))
	require.Len(t, fp.calls, 1)
	assert.Equal(t, EventsExchange, fp.calls[0].exchange)
	assert.Equal(t, "payment.confirmed", fp.calls[0].routingKey)
	assert.Equal(t, evt, fp.calls[0].payload)
}

type fakeConfirmer struct {
	ids []int64
	err error
}

func (f *fakeConfirmer) ConfirmPayment(_ context.Context, id int64) (dining.Reconciliation, error) {
	f.ids = append(f.ids, id)
	return dining.Reconciliation{}, f.err
}

func TestPaymentCallbackHandler(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		body      string
		confirmEr error
		wantErr   bool
		permanent bool
		confirmed []int64
	}{
		{name: "confirms", body: `{"paymentId": 12}`, confirmed: []int64{12}},
		{name: "malformed", body: `{`, wantErr: true, permanent: true},
		{name: "missing id", body: `{"reference":"x"}`, wantErr: true, permanent: true},
		{
			name:      "domain rejection",
			body:      `{"paymentId": 3}`,
			confirmEr: dining.NotFoundError("PAYMENT_NOT_FOUND", "payment not found"),
			wantErr:   true,
			permanent: true,
			confirmed: []int64{3},
		},
		{
			name:      "storage failure retries",
			body:      `{"paymentId": 4}`,
			confirmEr: dining.InternalError("storage failure", errors.New("conn reset")),
			wantErr:   true,
			confirmed: []int64{4},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeConfirmer{err: tt.confirmEr}
			err := PaymentCallbackHandler(fc)(ctx, []byte(tt.body))
			if !tt.wantErr {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.permanent, IsPermanent(err))
			}
			assert.Equal(t, tt.confirmed, fc.ids)
		})
	}
}

func TestEnsureTopologyNilClient(t *testing.T) {
	assert.NoError(t, EnsureTopology(nil))
}

func TestDineInTopology(t *testing.T) {
	topo := DineInTopology()
	require.Len(t, topo.Exchanges, 2)
	assert.Equal(t, amqp.ExchangeDirect, topo.Exchanges[1].Kind)

	require.Len(t, topo.Queues, 2)
	dlq, main := topo.Queues[0], topo.Queues[1]
	assert.Equal(t, PaymentCallbacksDLQ, dlq.Name)
	assert.Equal(t, PaymentCallbacksQueue, main.Name)
	assert.Equal(t, PaymentCallbacksExchange, main.Args["x-dead-letter-exchange"])
	assert.Equal(t, PaymentCallbacksDeadRK, main.Args["x-dead-letter-routing-key"])
	assert.Equal(t, []Binding{{Exchange: PaymentCallbacksExchange, RoutingKey: PaymentCallbacksRK}}, main.Bindings)
}
