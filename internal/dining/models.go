package dining

import (
	"time"

	"github.com/shopspring/decimal"
)

type Occupancy string

const (
	TableFree     Occupancy = "FREE"
	TableOccupied Occupancy = "OCCUPIED"
)

type Table struct {
	ID     int64
	Number int32
}

type TableWithStatus struct {
	Table
	Occupancy       Occupancy
	ActiveSessionID *int64
}

type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
)

type DiningSession struct {
	ID              int64
	TableID         int64
	OpenedByAdminID int64
	QRToken         string
	Status          SessionStatus
	StartedAt       time.Time
	EndedAt         *time.Time
	TotalCustomers  int32
	Total           decimal.Decimal
}

// Duration is nil until the session has ended.
func (s DiningSession) Duration() *time.Duration {
	if s.EndedAt == nil {
		return nil
	}
	d := s.EndedAt.Sub(s.StartedAt)
	return &d
}

type Group struct {
	ID              int64
	TableID         int64
	DiningSessionID int64
	CreatorUserID   *int64
	CreatedAt       time.Time
}

type Member struct {
	ID              int64
	GroupID         int64
	DiningSessionID int64
	UserID          *int64
	Name            string
	IsTableAdmin    bool
	JoinedAt        time.Time
	Note            *string
}

type MenuItem struct {
	ID          int64
	Name        string
	Price       decimal.Decimal
	IsAvailable bool
	ImageURL    *string
}

type Order struct {
	ID              int64
	DiningSessionID int64
	TableID         int64
	GroupID         *int64
	UserID          *int64
	Status          OrderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OrderItem struct {
	ID         int64
	OrderID    int64
	MenuItemID int64
	MemberID   int64
	Quantity   int32
	Note       *string
	Status     ItemStatus
	CreatedAt  time.Time
}

// OrderItemLine is an order item joined with its menu entry and member for display and billing.
type OrderItemLine struct {
	OrderItem
	DiningSessionID int64
	MenuName        string
	Price           decimal.Decimal
	ImageURL        *string
	MemberName      string
}

func (l OrderItemLine) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt32(l.Quantity))
}

type BillStatus string

const (
	BillUnpaid BillStatus = "UNPAID"
	BillPaid   BillStatus = "PAID"
)

type Bill struct {
	ID              int64
	OrderID         *int64
	DiningSessionID int64
	Subtotal        decimal.Decimal
	ServiceCharge   decimal.Decimal
	VAT             decimal.Decimal
	Total           decimal.Decimal
	Status          BillStatus
	CreatedAt       time.Time
}

type BillSplit struct {
	ID        int64
	BillID    int64
	MemberID  int64
	Amount    decimal.Decimal
	Paid      bool
	CreatedAt time.Time
}

// SplitView is a split joined with the member's display name.
type SplitView struct {
	BillSplit
	MemberName string
}

type BillWithSplits struct {
	Bill
	Splits []SplitView
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
)

const PaymentMethodQR = "QR"

type Payment struct {
	ID          int64
	BillID      int64
	BillSplitID *int64
	MemberID    *int64
	Amount      decimal.Decimal
	Method      string
	Status      PaymentStatus
	Payload     string
	PaidAt      *time.Time
	CreatedAt   time.Time
}
