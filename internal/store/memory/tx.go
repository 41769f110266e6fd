package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"dinein-service/internal/dining"
)

type tx struct {
	st *state
}

func (t *tx) ListTables(ctx context.Context) ([]dining.Table, error) {
	out := sortedValues(t.st.tables, nil)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (t *tx) GetTable(ctx context.Context, id int64) (dining.Table, error) {
	return lookup(t.st.tables, id)
}

func (t *tx) LockTable(ctx context.Context, id int64) (dining.Table, error) {
	return lookup(t.st.tables, id)
}

func (t *tx) InsertTable(ctx context.Context, table *dining.Table) error {
	for _, existing := range t.st.tables {
		if existing.Number == table.Number {
			return dining.ErrDuplicate
		}
	}
	table.ID = t.st.nextID()
	t.st.tables[table.ID] = *table
	return nil
}

func (t *tx) InsertSession(ctx context.Context, s *dining.DiningSession) error {
	if s.Status == dining.SessionActive {
		for _, existing := range t.st.sessions {
			if existing.TableID == s.TableID && existing.Status == dining.SessionActive {
				return dining.ErrDuplicate
			}
		}
	}
	s.ID = t.st.nextID()
	t.st.sessions[s.ID] = *s
	return nil
}

func (t *tx) GetSession(ctx context.Context, id int64) (dining.DiningSession, error) {
	return lookup(t.st.sessions, id)
}

func (t *tx) LockSession(ctx context.Context, id int64) (dining.DiningSession, error) {
	return lookup(t.st.sessions, id)
}

func (t *tx) GetSessionByToken(ctx context.Context, token string) (dining.DiningSession, error) {
	for _, s := range t.st.sessions {
		if s.QRToken == token {
			return s, nil
		}
	}
	return dining.DiningSession{}, dining.ErrNoRows
}

func (t *tx) ActiveSessionByTable(ctx context.Context, tableID int64) (dining.DiningSession, error) {
	for _, s := range t.st.sessions {
		if s.TableID == tableID && s.Status == dining.SessionActive {
			return s, nil
		}
	}
	return dining.DiningSession{}, dining.ErrNoRows
}

func (t *tx) ListActiveSessions(ctx context.Context) ([]dining.DiningSession, error) {
	return sortedValues(t.st.sessions, func(s dining.DiningSession) bool {
		return s.Status == dining.SessionActive
	}), nil
}

func (t *tx) CompleteSession(ctx context.Context, id int64, endedAt time.Time, totalCustomers int32, total decimal.Decimal) error {
	s, err := lookup(t.st.sessions, id)
	if err != nil {
		return err
	}
	s.Status = dining.SessionCompleted
	s.EndedAt = &endedAt
	s.TotalCustomers = totalCustomers
	s.Total = total
	t.st.sessions[id] = s
	return nil
}

func (t *tx) InsertGroup(ctx context.Context, g *dining.Group) error {
	g.ID = t.st.nextID()
	t.st.groups[g.ID] = *g
	return nil
}

func (t *tx) GetGroup(ctx context.Context, id int64) (dining.Group, error) {
	return lookup(t.st.groups, id)
}

func (t *tx) GroupBySession(ctx context.Context, sessionID int64) (dining.Group, error) {
	groups := sortedValues(t.st.groups, func(g dining.Group) bool { return g.DiningSessionID == sessionID })
	if len(groups) == 0 {
		return dining.Group{}, dining.ErrNoRows
	}
	return groups[0], nil
}

func (t *tx) InsertMember(ctx context.Context, m *dining.Member) error {
	m.ID = t.st.nextID()
	t.st.members[m.ID] = *m
	return nil
}

func (t *tx) GetMember(ctx context.Context, id int64) (dining.Member, error) {
	return lookup(t.st.members, id)
}

func (t *tx) ListMembersBySession(ctx context.Context, sessionID int64) ([]dining.Member, error) {
	return sortedValues(t.st.members, func(m dining.Member) bool { return m.DiningSessionID == sessionID }), nil
}

func (t *tx) ListMembersByGroup(ctx context.Context, groupID int64) ([]dining.Member, error) {
	return sortedValues(t.st.members, func(m dining.Member) bool { return m.GroupID == groupID }), nil
}

func (t *tx) SetMemberUser(ctx context.Context, memberID int64, userID int64) error {
	m, err := lookup(t.st.members, memberID)
	if err != nil {
		return err
	}
	m.UserID = &userID
	t.st.members[memberID] = m
	return nil
}

func (t *tx) DeleteMember(ctx context.Context, id int64) error {
	if _, ok := t.st.members[id]; !ok {
		return dining.ErrNoRows
	}
	delete(t.st.members, id)
	return nil
}

func (t *tx) CountItemsByMember(ctx context.Context, memberID int64) (int64, error) {
	var n int64
	for _, item := range t.st.items {
		if item.MemberID == memberID {
			n++
		}
	}
	return n, nil
}

func (t *tx) GetMenuItem(ctx context.Context, id int64) (dining.MenuItem, error) {
	return lookup(t.st.menu, id)
}

func (t *tx) InsertOrder(ctx context.Context, o *dining.Order) error {
	o.ID = t.st.nextID()
	t.st.orders[o.ID] = *o
	return nil
}

func (t *tx) GetOrder(ctx context.Context, id int64) (dining.Order, error) {
	return lookup(t.st.orders, id)
}

func (t *tx) LockOrder(ctx context.Context, id int64) (dining.Order, error) {
	return lookup(t.st.orders, id)
}

func (t *tx) ListOrdersBySession(ctx context.Context, sessionID int64) ([]dining.Order, error) {
	return sortedValues(t.st.orders, func(o dining.Order) bool { return o.DiningSessionID == sessionID }), nil
}

func (t *tx) SetOrderStatus(ctx context.Context, id int64, status dining.OrderStatus) error {
	o, err := lookup(t.st.orders, id)
	if err != nil {
		return err
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	t.st.orders[id] = o
	return nil
}

func (t *tx) CloseOrdersBySession(ctx context.Context, sessionID int64) (int64, error) {
	var n int64
	now := time.Now()
	for id, o := range t.st.orders {
		if o.DiningSessionID != sessionID || o.Status == dining.OrderClosed {
			continue
		}
		o.Status = dining.OrderClosed
		o.UpdatedAt = now
		t.st.orders[id] = o
		n++
	}
	return n, nil
}

func (t *tx) InsertOrderItem(ctx context.Context, item *dining.OrderItem) error {
	item.ID = t.st.nextID()
	t.st.items[item.ID] = *item
	return nil
}

func (t *tx) GetOrderItem(ctx context.Context, id int64) (dining.OrderItem, error) {
	return lookup(t.st.items, id)
}

func (t *tx) SetOrderItemStatus(ctx context.Context, id int64, status dining.ItemStatus) error {
	item, err := lookup(t.st.items, id)
	if err != nil {
		return err
	}
	item.Status = status
	t.st.items[id] = item
	return nil
}

func (t *tx) ListItemLinesByOrder(ctx context.Context, orderID int64) ([]dining.OrderItemLine, error) {
	return t.itemLines(func(item dining.OrderItem, o dining.Order) bool { return item.OrderID == orderID }), nil
}

func (t *tx) ListItemLinesBySession(ctx context.Context, sessionID int64) ([]dining.OrderItemLine, error) {
	return t.itemLines(func(item dining.OrderItem, o dining.Order) bool { return o.DiningSessionID == sessionID }), nil
}

// itemLines mirrors the inner join of items with their order, menu entry and member.
func (t *tx) itemLines(keep func(dining.OrderItem, dining.Order) bool) []dining.OrderItemLine {
	var out []dining.OrderItemLine
	for _, item := range sortedValues(t.st.items, nil) {
		order, ok := t.st.orders[item.OrderID]
		if !ok || !keep(item, order) {
			continue
		}
		menu, ok := t.st.menu[item.MenuItemID]
		if !ok {
			continue
		}
		member, ok := t.st.members[item.MemberID]
		if !ok {
			continue
		}
		out = append(out, dining.OrderItemLine{
			OrderItem:       item,
			DiningSessionID: order.DiningSessionID,
			MenuName:        menu.Name,
			Price:           menu.Price,
			ImageURL:        menu.ImageURL,
			MemberName:      member.Name,
		})
	}
	return out
}

func (t *tx) InsertBill(ctx context.Context, b *dining.Bill) error {
	for _, existing := range t.st.bills {
		if b.OrderID != nil && existing.OrderID != nil && *existing.OrderID == *b.OrderID {
			return dining.ErrDuplicate
		}
		if b.OrderID == nil && existing.OrderID == nil && existing.DiningSessionID == b.DiningSessionID {
			return dining.ErrDuplicate
		}
	}
	b.ID = t.st.nextID()
	t.st.bills[b.ID] = *b
	return nil
}

func (t *tx) GetBill(ctx context.Context, id int64) (dining.Bill, error) {
	return lookup(t.st.bills, id)
}

func (t *tx) LockBill(ctx context.Context, id int64) (dining.Bill, error) {
	return lookup(t.st.bills, id)
}

func (t *tx) BillByOrder(ctx context.Context, orderID int64) (dining.Bill, error) {
	for _, b := range t.st.bills {
		if b.OrderID != nil && *b.OrderID == orderID {
			return b, nil
		}
	}
	return dining.Bill{}, dining.ErrNoRows
}

func (t *tx) SessionBill(ctx context.Context, sessionID int64) (dining.Bill, error) {
	for _, b := range t.st.bills {
		if b.OrderID == nil && b.DiningSessionID == sessionID {
			return b, nil
		}
	}
	return dining.Bill{}, dining.ErrNoRows
}

func (t *tx) ListBillsBySession(ctx context.Context, sessionID int64) ([]dining.Bill, error) {
	return sortedValues(t.st.bills, func(b dining.Bill) bool { return b.DiningSessionID == sessionID }), nil
}

func (t *tx) SetBillStatus(ctx context.Context, id int64, status dining.BillStatus) error {
	b, err := lookup(t.st.bills, id)
	if err != nil {
		return err
	}
	b.Status = status
	t.st.bills[id] = b
	return nil
}

func (t *tx) InsertSplit(ctx context.Context, s *dining.BillSplit) error {
	for _, existing := range t.st.splits {
		if existing.BillID == s.BillID && existing.MemberID == s.MemberID {
			return dining.ErrDuplicate
		}
	}
	s.ID = t.st.nextID()
	t.st.splits[s.ID] = *s
	return nil
}

func (t *tx) DeleteSplits(ctx context.Context, billID int64) error {
	for id, s := range t.st.splits {
		if s.BillID == billID {
			delete(t.st.splits, id)
		}
	}
	return nil
}

func (t *tx) ListSplits(ctx context.Context, billID int64) ([]dining.SplitView, error) {
	splits := sortedValues(t.st.splits, func(s dining.BillSplit) bool { return s.BillID == billID })
	out := make([]dining.SplitView, 0, len(splits))
	for _, s := range splits {
		out = append(out, dining.SplitView{BillSplit: s, MemberName: t.st.members[s.MemberID].Name})
	}
	return out, nil
}

func (t *tx) SplitByMember(ctx context.Context, billID int64, memberID int64) (dining.BillSplit, error) {
	for _, s := range t.st.splits {
		if s.BillID == billID && s.MemberID == memberID {
			return s, nil
		}
	}
	return dining.BillSplit{}, dining.ErrNoRows
}

func (t *tx) MarkSplitPaid(ctx context.Context, id int64) error {
	s, err := lookup(t.st.splits, id)
	if err != nil {
		return err
	}
	s.Paid = true
	t.st.splits[id] = s
	return nil
}

func (t *tx) MarkAllSplitsPaid(ctx context.Context, billID int64) error {
	for id, s := range t.st.splits {
		if s.BillID == billID && !s.Paid {
			s.Paid = true
			t.st.splits[id] = s
		}
	}
	return nil
}

func (t *tx) CountUnpaidSplits(ctx context.Context, billID int64) (int64, error) {
	var n int64
	for _, s := range t.st.splits {
		if s.BillID == billID && !s.Paid {
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertPayment(ctx context.Context, p *dining.Payment) error {
	p.ID = t.st.nextID()
	t.st.payments[p.ID] = *p
	return nil
}

func (t *tx) LockPayment(ctx context.Context, id int64) (dining.Payment, error) {
	return lookup(t.st.payments, id)
}

func (t *tx) MarkPaymentPaid(ctx context.Context, id int64, paidAt time.Time) error {
	p, err := lookup(t.st.payments, id)
	if err != nil {
		return err
	}
	p.Status = dining.PaymentPaid
	p.PaidAt = &paidAt
	t.st.payments[id] = p
	return nil
}

func (t *tx) CountPaidPayments(ctx context.Context, billID int64) (int64, error) {
	var n int64
	for _, p := range t.st.payments {
		if p.BillID == billID && p.Status == dining.PaymentPaid {
			n++
		}
	}
	return n, nil
}

// LatestPayment orders PAID rows first by paidAt descending, then everything else by id descending.
func (t *tx) LatestPayment(ctx context.Context, billID int64, memberID *int64) (dining.Payment, error) {
	candidates := sortedValues(t.st.payments, func(p dining.Payment) bool {
		if p.BillID != billID {
			return false
		}
		return memberID == nil || p.MemberID != nil && *p.MemberID == *memberID
	})
	if len(candidates) == 0 {
		return dining.Payment{}, dining.ErrNoRows
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if (a.PaidAt != nil) != (b.PaidAt != nil) {
			return a.PaidAt != nil
		}
		if a.PaidAt != nil && !a.PaidAt.Equal(*b.PaidAt) {
			return a.PaidAt.After(*b.PaidAt)
		}
		return a.ID > b.ID
	})
	return candidates[0], nil
}

var _ dining.Tx = (*tx)(nil)
var _ dining.Store = (*Store)(nil)
