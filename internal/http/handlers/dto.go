package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"dinein-service/internal/dining"
)

// money is a fixed two-decimal string.
type money string

func toMoney(d decimal.Decimal) money {
	return money(d.StringFixed(2))
}

type tableDTO struct {
	ID              int64  `json:"id"`
	Number          int32  `json:"number"`
	Status          string `json:"status,omitempty"`
	ActiveSessionID *int64 `json:"activeSessionId,omitempty"`
}

type sessionDTO struct {
	ID              int64      `json:"id"`
	TableID         int64      `json:"tableId"`
	OpenedByAdminID int64      `json:"openedByAdminId"`
	QRToken         string     `json:"qrToken"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt"`
	TotalCustomers  int32      `json:"totalCustomers"`
	Total           money      `json:"total"`
	DurationSeconds *int64     `json:"durationSeconds"`
}

type groupDTO struct {
	ID              int64     `json:"id"`
	TableID         int64     `json:"tableId"`
	DiningSessionID int64     `json:"diningSessionId"`
	CreatorUserID   *int64    `json:"creatorUserId"`
	CreatedAt       time.Time `json:"createdAt"`
}

type memberDTO struct {
	ID              int64     `json:"id"`
	GroupID         int64     `json:"groupId"`
	DiningSessionID int64     `json:"diningSessionId"`
	UserID          *int64    `json:"userId"`
	Name            string    `json:"name"`
	IsTableAdmin    bool      `json:"isTableAdmin"`
	JoinedAt        time.Time `json:"joinedAt"`
	Note            *string   `json:"note"`
}

type orderDTO struct {
	ID              int64     `json:"id"`
	DiningSessionID int64     `json:"diningSessionId"`
	TableID         int64     `json:"tableId"`
	GroupID         *int64    `json:"groupId"`
	UserID          *int64    `json:"userId"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type orderItemDTO struct {
	ID         int64     `json:"id"`
	OrderID    int64     `json:"orderId"`
	MenuItemID int64     `json:"menuItemId"`
	MemberID   int64     `json:"memberId"`
	Quantity   int32     `json:"quantity"`
	Note       *string   `json:"note"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

type orderItemLineDTO struct {
	orderItemDTO
	MenuName   string  `json:"menuName"`
	Price      money   `json:"price"`
	LineTotal  money   `json:"lineTotal"`
	ImageURL   *string `json:"imageUrl"`
	MemberName string  `json:"memberName"`
}

type totalsDTO struct {
	Subtotal      money `json:"subtotal"`
	ServiceCharge money `json:"serviceCharge"`
	VAT           money `json:"vat"`
	Total         money `json:"total"`
}

type billDTO struct {
	ID              int64  `json:"id"`
	OrderID         *int64 `json:"orderId"`
	DiningSessionID int64  `json:"diningSessionId"`
	totalsDTO
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	Splits    []splitDTO `json:"splits,omitempty"`
}

type splitDTO struct {
	ID         int64  `json:"id"`
	BillID     int64  `json:"billId"`
	MemberID   int64  `json:"memberId"`
	MemberName string `json:"memberName,omitempty"`
	Amount     money  `json:"amount"`
	Paid       bool   `json:"paid"`
}

type paymentDTO struct {
	ID          int64      `json:"id"`
	BillID      int64      `json:"billId"`
	BillSplitID *int64     `json:"billSplitId"`
	MemberID    *int64     `json:"memberId"`
	Amount      money      `json:"amount"`
	Method      string     `json:"method"`
	Status      string     `json:"status"`
	Payload     string     `json:"payload,omitempty"`
	PaidAt      *time.Time `json:"paidAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toTable(t dining.Table) tableDTO {
	return tableDTO{ID: t.ID, Number: t.Number}
}

func toTableWithStatus(t dining.TableWithStatus) tableDTO {
	out := toTable(t.Table)
	out.Status = string(t.Occupancy)
	out.ActiveSessionID = t.ActiveSessionID
	return out
}

func toSession(s dining.DiningSession) sessionDTO {
	out := sessionDTO{
		ID:              s.ID,
		TableID:         s.TableID,
		OpenedByAdminID: s.OpenedByAdminID,
		QRToken:         s.QRToken,
		Status:          string(s.Status),
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		TotalCustomers:  s.TotalCustomers,
		Total:           toMoney(s.Total),
	}
	if d := s.Duration(); d != nil {
		secs := int64(d.Seconds())
		out.DurationSeconds = &secs
	}
	return out
}

func toGroup(g dining.Group) groupDTO {
	return groupDTO{ID: g.ID, TableID: g.TableID, DiningSessionID: g.DiningSessionID, CreatorUserID: g.CreatorUserID, CreatedAt: g.CreatedAt}
}

func toMember(m dining.Member) memberDTO {
	return memberDTO{
		ID:              m.ID,
		GroupID:         m.GroupID,
		DiningSessionID: m.DiningSessionID,
		UserID:          m.UserID,
		Name:            m.Name,
		IsTableAdmin:    m.IsTableAdmin,
		JoinedAt:        m.JoinedAt,
		Note:            m.Note,
	}
}

func toMembers(members []dining.Member) []memberDTO {
	return mapSlice(members, toMember)
}

func toOrder(o dining.Order) orderDTO {
	return orderDTO{
		ID:              o.ID,
		DiningSessionID: o.DiningSessionID,
		TableID:         o.TableID,
		GroupID:         o.GroupID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toOrderItem(i dining.OrderItem) orderItemDTO {
	return orderItemDTO{
		ID:         i.ID,
		OrderID:    i.OrderID,
		MenuItemID: i.MenuItemID,
		MemberID:   i.MemberID,
		Quantity:   i.Quantity,
		Note:       i.Note,
		Status:     string(i.Status),
		CreatedAt:  i.CreatedAt,
	}
}

func toItemLine(l dining.OrderItemLine) orderItemLineDTO {
	return orderItemLineDTO{
		orderItemDTO: toOrderItem(l.OrderItem),
		MenuName:     l.MenuName,
		Price:        toMoney(l.Price),
		LineTotal:    toMoney(l.LineTotal()),
		ImageURL:     l.ImageURL,
		MemberName:   l.MemberName,
	}
}

func toTotals(t dining.Totals) totalsDTO {
	return totalsDTO{
		Subtotal:      toMoney(t.Subtotal),
		ServiceCharge: toMoney(t.ServiceCharge),
		VAT:           toMoney(t.VAT),
		Total:         toMoney(t.Total),
	}
}

func toBill(b dining.Bill) billDTO {
	return billDTO{
		ID:              b.ID,
		OrderID:         b.OrderID,
		DiningSessionID: b.DiningSessionID,
		totalsDTO: toTotals(dining.Totals{
			Subtotal:      b.Subtotal,
			ServiceCharge: b.ServiceCharge,
			VAT:           b.VAT,
			Total:         b.Total,
		}),
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt,
	}
}

func toBillWithSplits(b dining.BillWithSplits) billDTO {
	out := toBill(b.Bill)
	out.Splits = toSplits(b.Splits)
	return out
}

func toSplits(splits []dining.SplitView) []splitDTO {
	return mapSlice(splits, func(s dining.SplitView) splitDTO {
		return splitDTO{
			ID:         s.ID,
			BillID:     s.BillID,
			MemberID:   s.MemberID,
			MemberName: s.MemberName,
			Amount:     toMoney(s.Amount),
			Paid:       s.Paid,
		}
	})
}

func toPayment(p dining.Payment) paymentDTO {
	return paymentDTO{
		ID:          p.ID,
		BillID:      p.BillID,
		BillSplitID: p.BillSplitID,
		MemberID:    p.MemberID,
		Amount:      toMoney(p.Amount),
		Method:      p.Method,
		Status:      string(p.Status),
		Payload:     p.Payload,
		PaidAt:      p.PaidAt,
		CreatedAt:   p.CreatedAt,
	}
}

func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
