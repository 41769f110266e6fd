package dining

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store runs fn inside one transaction. Returning an error from fn rolls it back.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the typed query surface of the relational store. Lookups by id return ErrNoRows when
// the row is missing; inserts violating a unique constraint return ErrDuplicate. The Lock*
// methods take a row lock held until the transaction ends.
type Tx interface {
	ListTables(ctx context.Context) ([]Table, error)
	GetTable(ctx context.Context, id int64) (Table, error)
	LockTable(ctx context.Context, id int64) (Table, error)
	InsertTable(ctx context.Context, t *Table) error

	InsertSession(ctx context.Context, s *DiningSession) error
	GetSession(ctx context.Context, id int64) (DiningSession, error)
	LockSession(ctx context.Context, id int64) (DiningSession, error)
	GetSessionByToken(ctx context.Context, token string) (DiningSession, error)
	ActiveSessionByTable(ctx context.Context, tableID int64) (DiningSession, error)
	ListActiveSessions(ctx context.Context) ([]DiningSession, error)
	CompleteSession(ctx context.Context, id int64, endedAt time.Time, totalCustomers int32, total decimal.Decimal) error

	InsertGroup(ctx context.Context, g *Group) error
	GetGroup(ctx context.Context, id int64) (Group, error)
	GroupBySession(ctx context.Context, sessionID int64) (Group, error)

	InsertMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, id int64) (Member, error)
	ListMembersBySession(ctx context.Context, sessionID int64) ([]Member, error)
	ListMembersByGroup(ctx context.Context, groupID int64) ([]Member, error)
	SetMemberUser(ctx context.Context, memberID int64, userID int64) error
	DeleteMember(ctx context.Context, id int64) error
	CountItemsByMember(ctx context.Context, memberID int64) (int64, error)

	GetMenuItem(ctx context.Context, id int64) (MenuItem, error)

	InsertOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	LockOrder(ctx context.Context, id int64) (Order, error)
	ListOrdersBySession(ctx context.Context, sessionID int64) ([]Order, error)
	SetOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	CloseOrdersBySession(ctx context.Context, sessionID int64) (int64, error)

	InsertOrderItem(ctx context.Context, item *OrderItem) error
	GetOrderItem(ctx context.Context, id int64) (OrderItem, error)
	SetOrderItemStatus(ctx context.Context, id int64, status ItemStatus) error
	ListItemLinesByOrder(ctx context.Context, orderID int64) ([]OrderItemLine, error)
	ListItemLinesBySession(ctx context.Context, sessionID int64) ([]OrderItemLine, error)

	InsertBill(ctx context.Context, b *Bill) error
	GetBill(ctx context.Context, id int64) (Bill, error)
	LockBill(ctx context.Context, id int64) (Bill, error)
	BillByOrder(ctx context.Context, orderID int64) (Bill, error)
	SessionBill(ctx context.Context, sessionID int64) (Bill, error)
	ListBillsBySession(ctx context.Context, sessionID int64) ([]Bill, error)
	SetBillStatus(ctx context.Context, id int64, status BillStatus) error

	InsertSplit(ctx context.Context, s *BillSplit) error
	DeleteSplits(ctx context.Context, billID int64) error
	ListSplits(ctx context.Context, billID int64) ([]SplitView, error)
	SplitByMember(ctx context.Context, billID int64, memberID int64) (BillSplit, error)
	MarkSplitPaid(ctx context.Context, id int64) error
	MarkAllSplitsPaid(ctx context.Context, billID int64) error
	CountUnpaidSplits(ctx context.Context, billID int64) (int64, error)

	InsertPayment(ctx context.Context, p *Payment) error
	LockPayment(ctx context.Context, id int64) (Payment, error)
	MarkPaymentPaid(ctx context.Context, id int64, paidAt time.Time) error
	CountPaidPayments(ctx context.Context, billID int64) (int64, error)
	LatestPayment(ctx context.Context, billID int64, memberID *int64) (Payment, error)
}
