package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"dinein-service/internal/dining"
)

type queries struct {
	tx pgx.Tx
}

var _ dining.Tx = (*queries)(nil)

// Tables

func scanTable(row scanner) (dining.Table, error) {
	var t dining.Table
	err := row.Scan(&t.ID, &t.Number)
	return t, mapErr(err)
}

func (q *queries) ListTables(ctx context.Context) ([]dining.Table, error) {
	rows, err := q.tx.Query(ctx, `select id, number from dining_tables order by number`)
	return collect(rows, err, scanTable)
}

func (q *queries) GetTable(ctx context.Context, id int64) (dining.Table, error) {
	return scanTable(q.tx.QueryRow(ctx, `select id, number from dining_tables where id = $1`, id))
}

func (q *queries) LockTable(ctx context.Context, id int64) (dining.Table, error) {
	return scanTable(q.tx.QueryRow(ctx, `select id, number from dining_tables where id = $1 for update`, id))
}

func (q *queries) InsertTable(ctx context.Context, t *dining.Table) error {
	err := q.tx.QueryRow(ctx, `insert into dining_tables (number) values ($1) returning id`, t.Number).Scan(&t.ID)
	return mapErr(err)
}

// Sessions

const sessionCols = `id, table_id, opened_by_admin_id, qr_token, status, started_at, ended_at, total_customers, total`

func scanSession(row scanner) (dining.DiningSession, error) {
	var (
		s      dining.DiningSession
		status string
		total  pgtype.Numeric
	)
	err := row.Scan(&s.ID, &s.TableID, &s.OpenedByAdminID, &s.QRToken, &status, &s.StartedAt, &s.EndedAt, &s.TotalCustomers, &total)
	if err != nil {
		return dining.DiningSession{}, mapErr(err)
	}
	s.Status = dining.SessionStatus(status)
	s.Total = toDecimal(total)
	return s, nil
}

func (q *queries) InsertSession(ctx context.Context, s *dining.DiningSession) error {
	err := q.tx.QueryRow(ctx, `
		insert into dining_sessions (table_id, opened_by_admin_id, qr_token, status, started_at, total_customers, total)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id
	`, s.TableID, s.OpenedByAdminID, s.QRToken, string(s.Status), s.StartedAt, s.TotalCustomers, s.Total).Scan(&s.ID)
	return mapErr(err)
}

func (q *queries) GetSession(ctx context.Context, id int64) (dining.DiningSession, error) {
	return scanSession(q.tx.QueryRow(ctx, `select `+sessionCols+` from dining_sessions where id = $1`, id))
}

func (q *queries) LockSession(ctx context.Context, id int64) (dining.DiningSession, error) {
	return scanSession(q.tx.QueryRow(ctx, `select `+sessionCols+` from dining_sessions where id = $1 for update`, id))
}

func (q *queries) GetSessionByToken(ctx context.Context, token string) (dining.DiningSession, error) {
	return scanSession(q.tx.QueryRow(ctx, `select `+sessionCols+` from dining_sessions where qr_token = $1`, token))
}

func (q *queries) ActiveSessionByTable(ctx context.Context, tableID int64) (dining.DiningSession, error) {
	return scanSession(q.tx.QueryRow(ctx, `
		select `+sessionCols+` from dining_sessions where table_id = $1 and status = 'ACTIVE'
	`, tableID))
}

func (q *queries) ListActiveSessions(ctx context.Context) ([]dining.DiningSession, error) {
	rows, err := q.tx.Query(ctx, `select `+sessionCols+` from dining_sessions where status = 'ACTIVE' order by id`)
	return collect(rows, err, scanSession)
}

func (q *queries) CompleteSession(ctx context.Context, id int64, endedAt time.Time, totalCustomers int32, total decimal.Decimal) error {
	return execOne(q.tx.Exec(ctx, `
		update dining_sessions
		set status = 'COMPLETED', ended_at = $2, total_customers = $3, total = $4
		where id = $1
	`, id, endedAt, totalCustomers, total))
}

// Groups and members

const groupCols = `id, table_id, dining_session_id, creator_user_id, created_at`

func scanGroup(row scanner) (dining.Group, error) {
	var g dining.Group
	err := row.Scan(&g.ID, &g.TableID, &g.DiningSessionID, &g.CreatorUserID, &g.CreatedAt)
	return g, mapErr(err)
}

func (q *queries) InsertGroup(ctx context.Context, g *dining.Group) error {
	err := q.tx.QueryRow(ctx, `
		insert into dining_groups (table_id, dining_session_id, creator_user_id, created_at)
		values ($1, $2, $3, $4)
		returning id
	`, g.TableID, g.DiningSessionID, g.CreatorUserID, g.CreatedAt).Scan(&g.ID)
	return mapErr(err)
}

func (q *queries) GetGroup(ctx context.Context, id int64) (dining.Group, error) {
	return scanGroup(q.tx.QueryRow(ctx, `select `+groupCols+` from dining_groups where id = $1`, id))
}

func (q *queries) GroupBySession(ctx context.Context, sessionID int64) (dining.Group, error) {
	return scanGroup(q.tx.QueryRow(ctx, `
		select `+groupCols+` from dining_groups where dining_session_id = $1 order by id limit 1
	`, sessionID))
}

const memberCols = `id, group_id, dining_session_id, user_id, name, is_table_admin, joined_at, note`

func scanMember(row scanner) (dining.Member, error) {
	var m dining.Member
	err := row.Scan(&m.ID, &m.GroupID, &m.DiningSessionID, &m.UserID, &m.Name, &m.IsTableAdmin, &m.JoinedAt, &m.Note)
	return m, mapErr(err)
}

func (q *queries) InsertMember(ctx context.Context, m *dining.Member) error {
	err := q.tx.QueryRow(ctx, `
		insert into members (group_id, dining_session_id, user_id, name, is_table_admin, joined_at, note)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id
	`, m.GroupID, m.DiningSessionID, m.UserID, m.Name, m.IsTableAdmin, m.JoinedAt, m.Note).Scan(&m.ID)
	return mapErr(err)
}

func (q *queries) GetMember(ctx context.Context, id int64) (dining.Member, error) {
	return scanMember(q.tx.QueryRow(ctx, `select `+memberCols+` from members where id = $1`, id))
}

func (q *queries) ListMembersBySession(ctx context.Context, sessionID int64) ([]dining.Member, error) {
	rows, err := q.tx.Query(ctx, `select `+memberCols+` from members where dining_session_id = $1 order by id`, sessionID)
	return collect(rows, err, scanMember)
}

func (q *queries) ListMembersByGroup(ctx context.Context, groupID int64) ([]dining.Member, error) {
	rows, err := q.tx.Query(ctx, `select `+memberCols+` from members where group_id = $1 order by id`, groupID)
	return collect(rows, err, scanMember)
}

func (q *queries) SetMemberUser(ctx context.Context, memberID int64, userID int64) error {
	return execOne(q.tx.Exec(ctx, `update members set user_id = $2 where id = $1`, memberID, userID))
}

func (q *queries) DeleteMember(ctx context.Context, id int64) error {
	return execOne(q.tx.Exec(ctx, `delete from members where id = $1`, id))
}

func (q *queries) CountItemsByMember(ctx context.Context, memberID int64) (int64, error) {
	var n int64
	err := q.tx.QueryRow(ctx, `select count(*) from order_items where member_id = $1`, memberID).Scan(&n)
	return n, mapErr(err)
}

// Menu

func (q *queries) GetMenuItem(ctx context.Context, id int64) (dining.MenuItem, error) {
	var (
		m     dining.MenuItem
		price pgtype.Numeric
	)
	err := q.tx.QueryRow(ctx, `
		select id, name, price, is_available, image_url from menu_items where id = $1
	`, id).Scan(&m.ID, &m.Name, &price, &m.IsAvailable, &m.ImageURL)
	if err != nil {
		return dining.MenuItem{}, mapErr(err)
	}
	m.Price = toDecimal(price)
	return m, nil
}

// Orders and items

const orderCols = `id, dining_session_id, table_id, group_id, user_id, status, created_at, updated_at`

func scanOrder(row scanner) (dining.Order, error) {
	var (
		o      dining.Order
		status string
	)
	err := row.Scan(&o.ID, &o.DiningSessionID, &o.TableID, &o.GroupID, &o.UserID, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return dining.Order{}, mapErr(err)
	}
	o.Status = dining.OrderStatus(status)
	return o, nil
}

func (q *queries) InsertOrder(ctx context.Context, o *dining.Order) error {
	err := q.tx.QueryRow(ctx, `
		insert into orders (dining_session_id, table_id, group_id, user_id, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id
	`, o.DiningSessionID, o.TableID, o.GroupID, o.UserID, string(o.Status), o.CreatedAt, o.UpdatedAt).Scan(&o.ID)
	return mapErr(err)
}

func (q *queries) GetOrder(ctx context.Context, id int64) (dining.Order, error) {
	return scanOrder(q.tx.QueryRow(ctx, `select `+orderCols+` from orders where id = $1`, id))
}

func (q *queries) LockOrder(ctx context.Context, id int64) (dining.Order, error) {
	return scanOrder(q.tx.QueryRow(ctx, `select `+orderCols+` from orders where id = $1 for update`, id))
}

func (q *queries) ListOrdersBySession(ctx context.Context, sessionID int64) ([]dining.Order, error) {
	rows, err := q.tx.Query(ctx, `select `+orderCols+` from orders where dining_session_id = $1 order by id`, sessionID)
	return collect(rows, err, scanOrder)
}

func (q *queries) SetOrderStatus(ctx context.Context, id int64, status dining.OrderStatus) error {
	return execOne(q.tx.Exec(ctx, `update orders set status = $2, updated_at = now() where id = $1`, id, string(status)))
}

func (q *queries) CloseOrdersBySession(ctx context.Context, sessionID int64) (int64, error) {
	tag, err := q.tx.Exec(ctx, `
		update orders set status = 'CLOSED', updated_at = now()
		where dining_session_id = $1 and status <> 'CLOSED'
	`, sessionID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

const itemCols = `id, order_id, menu_item_id, member_id, quantity, note, status, created_at`

func scanItem(row scanner) (dining.OrderItem, error) {
	var (
		it     dining.OrderItem
		status string
	)
	err := row.Scan(&it.ID, &it.OrderID, &it.MenuItemID, &it.MemberID, &it.Quantity, &it.Note, &status, &it.CreatedAt)
	if err != nil {
		return dining.OrderItem{}, mapErr(err)
	}
	it.Status = dining.ItemStatus(status)
	return it, nil
}

func (q *queries) InsertOrderItem(ctx context.Context, item *dining.OrderItem) error {
	err := q.tx.QueryRow(ctx, `
		insert into order_items (order_id, menu_item_id, member_id, quantity, note, status, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
		returning id
	`, item.OrderID, item.MenuItemID, item.MemberID, item.Quantity, item.Note, string(item.Status), item.CreatedAt).Scan(&item.ID)
	return mapErr(err)
}

func (q *queries) GetOrderItem(ctx context.Context, id int64) (dining.OrderItem, error) {
	return scanItem(q.tx.QueryRow(ctx, `select `+itemCols+` from order_items where id = $1`, id))
}

func (q *queries) SetOrderItemStatus(ctx context.Context, id int64, status dining.ItemStatus) error {
	return execOne(q.tx.Exec(ctx, `update order_items set status = $2 where id = $1`, id, string(status)))
}

const itemLineSelect = `
	select oi.id, oi.order_id, oi.menu_item_id, oi.member_id, oi.quantity, oi.note, oi.status, oi.created_at,
		o.dining_session_id, mi.name, mi.price, mi.image_url, m.name
	from order_items oi
	join orders o on o.id = oi.order_id
	join menu_items mi on mi.id = oi.menu_item_id
	join members m on m.id = oi.member_id
`

func scanItemLine(row scanner) (dining.OrderItemLine, error) {
	var (
		l      dining.OrderItemLine
		status string
		price  pgtype.Numeric
	)
	err := row.Scan(
		&l.ID, &l.OrderID, &l.MenuItemID, &l.MemberID, &l.Quantity, &l.Note, &status, &l.CreatedAt,
		&l.DiningSessionID, &l.MenuName, &price, &l.ImageURL, &l.MemberName,
	)
	if err != nil {
		return dining.OrderItemLine{}, mapErr(err)
	}
	l.Status = dining.ItemStatus(status)
	l.Price = toDecimal(price)
	return l, nil
}

func (q *queries) ListItemLinesByOrder(ctx context.Context, orderID int64) ([]dining.OrderItemLine, error) {
	rows, err := q.tx.Query(ctx, itemLineSelect+` where oi.order_id = $1 order by oi.id`, orderID)
	return collect(rows, err, scanItemLine)
}

func (q *queries) ListItemLinesBySession(ctx context.Context, sessionID int64) ([]dining.OrderItemLine, error) {
	rows, err := q.tx.Query(ctx, itemLineSelect+` where o.dining_session_id = $1 order by oi.id`, sessionID)
	return collect(rows, err, scanItemLine)
}

// Bills and splits

const billCols = `id, order_id, dining_session_id, subtotal, service_charge, vat, total, status, created_at`

func scanBill(row scanner) (dining.Bill, error) {
	var (
		b                                 dining.Bill
		subtotal, serviceCharge, vat, tot pgtype.Numeric
		status                            string
	)
	err := row.Scan(&b.ID, &b.OrderID, &b.DiningSessionID, &subtotal, &serviceCharge, &vat, &tot, &status, &b.CreatedAt)
	if err != nil {
		return dining.Bill{}, mapErr(err)
	}
	b.Subtotal = toDecimal(subtotal)
	b.ServiceCharge = toDecimal(serviceCharge)
	b.VAT = toDecimal(vat)
	b.Total = toDecimal(tot)
	b.Status = dining.BillStatus(status)
	return b, nil
}

// InsertBill reports ErrDuplicate without aborting the transaction, so the caller can re-read
// the bill that won the race.
func (q *queries) InsertBill(ctx context.Context, b *dining.Bill) error {
	conflict := `on conflict (order_id) do nothing`
	if b.OrderID == nil {
		conflict = `on conflict (dining_session_id) where order_id is null do nothing`
	}
	err := q.tx.QueryRow(ctx, `
		insert into bills (order_id, dining_session_id, subtotal, service_charge, vat, total, status, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		`+conflict+`
		returning id
	`, b.OrderID, b.DiningSessionID, b.Subtotal, b.ServiceCharge, b.VAT, b.Total, string(b.Status), b.CreatedAt).Scan(&b.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return dining.ErrDuplicate
	}
	return mapErr(err)
}

func (q *queries) GetBill(ctx context.Context, id int64) (dining.Bill, error) {
	return scanBill(q.tx.QueryRow(ctx, `select `+billCols+` from bills where id = $1`, id))
}

func (q *queries) LockBill(ctx context.Context, id int64) (dining.Bill, error) {
	return scanBill(q.tx.QueryRow(ctx, `select `+billCols+` from bills where id = $1 for update`, id))
}

func (q *queries) BillByOrder(ctx context.Context, orderID int64) (dining.Bill, error) {
	return scanBill(q.tx.QueryRow(ctx, `select `+billCols+` from bills where order_id = $1`, orderID))
}

func (q *queries) SessionBill(ctx context.Context, sessionID int64) (dining.Bill, error) {
	return scanBill(q.tx.QueryRow(ctx, `
		select `+billCols+` from bills where dining_session_id = $1 and order_id is null
	`, sessionID))
}

func (q *queries) ListBillsBySession(ctx context.Context, sessionID int64) ([]dining.Bill, error) {
	rows, err := q.tx.Query(ctx, `select `+billCols+` from bills where dining_session_id = $1 order by id`, sessionID)
	return collect(rows, err, scanBill)
}

func (q *queries) SetBillStatus(ctx context.Context, id int64, status dining.BillStatus) error {
	return execOne(q.tx.Exec(ctx, `update bills set status = $2 where id = $1`, id, string(status)))
}

func (q *queries) InsertSplit(ctx context.Context, s *dining.BillSplit) error {
	err := q.tx.QueryRow(ctx, `
		insert into bill_splits (bill_id, member_id, amount, paid, created_at)
		values ($1, $2, $3, $4, $5)
		returning id
	`, s.BillID, s.MemberID, s.Amount, s.Paid, s.CreatedAt).Scan(&s.ID)
	return mapErr(err)
}

func (q *queries) DeleteSplits(ctx context.Context, billID int64) error {
	_, err := q.tx.Exec(ctx, `delete from bill_splits where bill_id = $1`, billID)
	return mapErr(err)
}

func scanSplit(row scanner) (dining.BillSplit, error) {
	var (
		s      dining.BillSplit
		amount pgtype.Numeric
	)
	err := row.Scan(&s.ID, &s.BillID, &s.MemberID, &amount, &s.Paid, &s.CreatedAt)
	if err != nil {
		return dining.BillSplit{}, mapErr(err)
	}
	s.Amount = toDecimal(amount)
	return s, nil
}

func (q *queries) ListSplits(ctx context.Context, billID int64) ([]dining.SplitView, error) {
	rows, err := q.tx.Query(ctx, `
		select bs.id, bs.bill_id, bs.member_id, bs.amount, bs.paid, bs.created_at, coalesce(m.name, '')
		from bill_splits bs
		left join members m on m.id = bs.member_id
		where bs.bill_id = $1
		order by bs.id
	`, billID)
	return collect(rows, err, func(row scanner) (dining.SplitView, error) {
		var (
			v      dining.SplitView
			amount pgtype.Numeric
		)
		err := row.Scan(&v.ID, &v.BillID, &v.MemberID, &amount, &v.Paid, &v.CreatedAt, &v.MemberName)
		if err != nil {
			return dining.SplitView{}, mapErr(err)
		}
		v.Amount = toDecimal(amount)
		return v, nil
	})
}

func (q *queries) SplitByMember(ctx context.Context, billID int64, memberID int64) (dining.BillSplit, error) {
	return scanSplit(q.tx.QueryRow(ctx, `
		select id, bill_id, member_id, amount, paid, created_at
		from bill_splits where bill_id = $1 and member_id = $2
	`, billID, memberID))
}

func (q *queries) MarkSplitPaid(ctx context.Context, id int64) error {
	return execOne(q.tx.Exec(ctx, `update bill_splits set paid = true where id = $1`, id))
}

func (q *queries) MarkAllSplitsPaid(ctx context.Context, billID int64) error {
	_, err := q.tx.Exec(ctx, `update bill_splits set paid = true where bill_id = $1 and not paid`, billID)
	return mapErr(err)
}

func (q *queries) CountUnpaidSplits(ctx context.Context, billID int64) (int64, error) {
	var n int64
	err := q.tx.QueryRow(ctx, `select count(*) from bill_splits where bill_id = $1 and not paid`, billID).Scan(&n)
	return n, mapErr(err)
}

// Payments

const paymentCols = `id, bill_id, bill_split_id, member_id, amount, method, status, payload, paid_at, created_at`

func scanPayment(row scanner) (dining.Payment, error) {
	var (
		p      dining.Payment
		amount pgtype.Numeric
		status string
	)
	err := row.Scan(&p.ID, &p.BillID, &p.BillSplitID, &p.MemberID, &amount, &p.Method, &status, &p.Payload, &p.PaidAt, &p.CreatedAt)
	if err != nil {
		return dining.Payment{}, mapErr(err)
	}
	p.Amount = toDecimal(amount)
	p.Status = dining.PaymentStatus(status)
	return p, nil
}

func (q *queries) InsertPayment(ctx context.Context, p *dining.Payment) error {
	err := q.tx.QueryRow(ctx, `
		insert into payments (bill_id, bill_split_id, member_id, amount, method, status, payload, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
		returning id
	`, p.BillID, p.BillSplitID, p.MemberID, p.Amount, p.Method, string(p.Status), p.Payload, p.CreatedAt).Scan(&p.ID)
	return mapErr(err)
}

func (q *queries) LockPayment(ctx context.Context, id int64) (dining.Payment, error) {
	return scanPayment(q.tx.QueryRow(ctx, `select `+paymentCols+` from payments where id = $1 for update`, id))
}

func (q *queries) MarkPaymentPaid(ctx context.Context, id int64, paidAt time.Time) error {
	return execOne(q.tx.Exec(ctx, `update payments set status = 'PAID', paid_at = $2 where id = $1`, id, paidAt))
}

func (q *queries) CountPaidPayments(ctx context.Context, billID int64) (int64, error) {
	var n int64
	err := q.tx.QueryRow(ctx, `select count(*) from payments where bill_id = $1 and status = 'PAID'`, billID).Scan(&n)
	return n, mapErr(err)
}

func (q *queries) LatestPayment(ctx context.Context, billID int64, memberID *int64) (dining.Payment, error) {
	return scanPayment(q.tx.QueryRow(ctx, `
		select `+paymentCols+`
		from payments
		where bill_id = $1 and ($2::bigint is null or member_id = $2)
		order by (status = 'PAID') desc, paid_at desc nulls last, id desc
		limit 1
	`, billID, memberID))
}
