package dining

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventSessionStarted     = "session.started"
	EventSessionCompleted   = "session.completed"
	EventBillGenerated      = "bill.generated"
	EventPaymentConfirmed   = "payment.confirmed"
	EventOrderStatusUpdated = "order.status.updated"
)

// Event is the envelope published on the events exchange; the routing key is Type.
type Event struct {
	Type       string         `json:"type"`
	SessionID  int64          `json:"sessionId"`
	TableID    int64          `json:"tableId,omitempty"`
	OrderID    *int64         `json:"orderId,omitempty"`
	BillID     *int64         `json:"billId,omitempty"`
	PaymentID  *int64         `json:"paymentId,omitempty"`
	Status     string         `json:"status,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

func newSessionToken() string {
	return uuid.NewString()
}

func int64Ptr(v int64) *int64 {
	return &v
}
