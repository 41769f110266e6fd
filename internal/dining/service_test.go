package dining_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinein-service/internal/dining"
	"dinein-service/internal/promptpay"
	"dinein-service/internal/store/memory"
)

const adminID int64 = 7

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []dining.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt dining.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	ctx     context.Context
	svc     *dining.Service
	store   *memory.Store
	pub     *recordingPublisher
	tables  []dining.Table
	menuA   dining.MenuItem
	menuB   dining.MenuItem
	soldOut dining.MenuItem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	pub := &recordingPublisher{}
	clock := &stepClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	f := &fixture{
		ctx:     context.Background(),
		store:   store,
		pub:     pub,
		tables:  store.AddTables(3),
		menuA:   store.PutMenuItem(dining.MenuItem{Name: "Pad Thai", Price: decimal.NewFromInt(100), IsAvailable: true}),
		menuB:   store.PutMenuItem(dining.MenuItem{Name: "Som Tam", Price: decimal.NewFromInt(50), IsAvailable: true}),
		soldOut: store.PutMenuItem(dining.MenuItem{Name: "Tom Yum", Price: decimal.NewFromInt(90)}),
	}
	f.svc = dining.NewService(store, dining.Options{
		ClientBaseURL: "https://dine.example.com/",
		PromptPayID:   "0812345678",
		Encoder:       promptpay.Encoder{},
		Publisher:     pub,
		Now:           clock.Now,
	})
	return f
}

func (f *fixture) start(t *testing.T, table dining.Table) dining.StartSessionResult {
	t.Helper()
	res, err := f.svc.StartSession(f.ctx, dining.StartSessionInput{TableID: table.ID, ActingAdminID: adminID})
	require.NoError(t, err)
	return res
}

func (f *fixture) member(t *testing.T, sessionID int64, name string) dining.Member {
	t.Helper()
	m, err := f.svc.AddMember(f.ctx, dining.AddMemberInput{SessionID: sessionID, Name: name})
	require.NoError(t, err)
	return m
}

// scenarioOrder seats two diners and orders 2x100 for m1 and 1x50 for m2.
func (f *fixture) scenarioOrder(t *testing.T) (dining.StartSessionResult, dining.Member, dining.Member, dining.OrderWithItems) {
	t.Helper()
	res := f.start(t, f.tables[0])
	m1 := f.member(t, res.Session.ID, "Alice")
	m2 := f.member(t, res.Session.ID, "Bob")
	order, err := f.svc.CreateOrderWithItems(f.ctx, dining.CreateOrderWithItemsInput{
		CreateOrderInput: dining.CreateOrderInput{SessionID: res.Session.ID, TableID: f.tables[0].ID},
		Items: []dining.OrderItemInput{
			{MenuItemID: f.menuA.ID, Quantity: 2, MemberID: &m1.ID},
			{MenuItemID: f.menuB.ID, Quantity: 1, MemberID: &m2.ID},
		},
	})
	require.NoError(t, err)
	return res, m1, m2, order
}

func money(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, want, got.StringFixed(2))
}

func splitFor(t *testing.T, splits []dining.SplitView, memberID int64) dining.SplitView {
	t.Helper()
	for _, s := range splits {
		if s.MemberID == memberID {
			return s
		}
	}
	t.Fatalf("no split for member %d", memberID)
	return dining.SplitView{}
}

func TestStartSessionOccupiesTable(t *testing.T) {
	f := newFixture(t)

	tables, err := f.svc.ListTablesWithStatus(f.ctx)
	require.NoError(t, err)
	require.Len(t, tables, 3)
	for _, tbl := range tables {
		assert.Equal(t, dining.TableFree, tbl.Occupancy)
	}

	res := f.start(t, f.tables[0])
	assert.Equal(t, dining.SessionActive, res.Session.Status)
	assert.Equal(t, adminID, res.Session.OpenedByAdminID)
	assert.NotEmpty(t, res.Session.QRToken)
	assert.Equal(t, "https://dine.example.com/session/"+res.Session.QRToken, res.QRPayload)
	assert.Equal(t, res.Session.ID, res.Group.DiningSessionID)
	assert.True(t, res.Owner.IsTableAdmin)
	assert.Equal(t, "Owner", res.Owner.Name)

	tables, err = f.svc.ListTablesWithStatus(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, dining.TableOccupied, tables[0].Occupancy)
	require.NotNil(t, tables[0].ActiveSessionID)
	assert.Equal(t, res.Session.ID, *tables[0].ActiveSessionID)
	assert.Equal(t, dining.TableFree, tables[1].Occupancy)

	_, err = f.svc.StartSession(f.ctx, dining.StartSessionInput{TableID: f.tables[0].ID, ActingAdminID: adminID})
	assert.True(t, dining.IsKind(err, dining.KindConflict), "got %v", err)

	assert.Equal(t, []string{dining.EventSessionStarted}, f.pub.types())
}

func TestStartSessionErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.StartSession(f.ctx, dining.StartSessionInput{TableID: 9999, ActingAdminID: adminID})
	assert.True(t, dining.IsKind(err, dining.KindNotFound))

	_, err = f.svc.StartSession(f.ctx, dining.StartSessionInput{TableID: f.tables[0].ID})
	assert.True(t, dining.IsKind(err, dining.KindValidation))
}

func TestConcurrentStartsOnlyOneWins(t *testing.T) {
	f := newFixture(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.StartSession(f.ctx, dining.StartSessionInput{TableID: f.tables[1].ID, ActingAdminID: adminID})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
			} else if dining.IsKind(err, dining.KindConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 7, conflicts)
}

func TestEndSessionFreesTable(t *testing.T) {
	f := newFixture(t)
	res, _, _, order := f.scenarioOrder(t)

	bill, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
	require.NoError(t, err)

	_, err = f.svc.EndSession(f.ctx, dining.EndSessionInput{TableID: f.tables[0].ID})
	assert.True(t, dining.IsKind(err, dining.KindValidation))

	ended, err := f.svc.EndSession(f.ctx, dining.EndSessionInput{TableID: f.tables[0].ID, ActingAdminID: adminID})
	require.NoError(t, err)
	assert.Equal(t, dining.SessionCompleted, ended.Status)
	require.NotNil(t, ended.EndedAt)
	assert.Equal(t, int32(3), ended.TotalCustomers)
	assert.True(t, ended.Total.Equal(bill.Total))

	detail, err := f.svc.GetSession(f.ctx, res.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Duration)
	assert.Positive(t, *detail.Duration)
	assert.Len(t, detail.Members, 3)

	orders, err := f.svc.ListOrdersBySession(f.ctx, res.Session.ID)
	require.NoError(t, err)
	for _, o := range orders {
		assert.Equal(t, dining.OrderClosed, o.Status)
	}

	_, err = f.svc.EndSession(f.ctx, dining.EndSessionInput{SessionID: res.Session.ID, ActingAdminID: adminID})
	assert.True(t, dining.IsKind(err, dining.KindNotFound))

	again := f.start(t, f.tables[0])
	assert.NotEqual(t, res.Session.ID, again.Session.ID)
}

func TestGetSessionByTokenAndActiveSessions(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, f.tables[2])
	bob := f.member(t, res.Session.ID, "Bob")

	detail, err := f.svc.GetSessionByToken(f.ctx, res.Session.QRToken)
	require.NoError(t, err)
	assert.Equal(t, res.Session.ID, detail.Session.ID)
	assert.Equal(t, f.tables[2].Number, detail.Table.Number)
	assert.Nil(t, detail.Duration)

	_, err = f.svc.GetSessionByToken(f.ctx, "nope")
	assert.True(t, dining.IsKind(err, dining.KindNotFound))

	active, err := f.svc.GetActiveSessions(f.ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.NotNil(t, active[0].PrimaryGroup)
	assert.Equal(t, bob.GroupID, active[0].PrimaryGroup.ID)
	assert.Len(t, active[0].Members, 2)
}

func TestMembers(t *testing.T) {
	f := newFixture(t)
	res, m1, _, _ := f.scenarioOrder(t)
	extra := f.member(t, res.Session.ID, "Carol")

	_, err := f.svc.AddMember(f.ctx, dining.AddMemberInput{SessionID: res.Session.ID, Name: "  "})
	assert.True(t, dining.IsKind(err, dining.KindValidation))

	err = f.svc.RemoveMember(f.ctx, res.Owner.ID)
	assert.True(t, dining.IsKind(err, dining.KindConflict))

	err = f.svc.RemoveMember(f.ctx, m1.ID)
	assert.True(t, dining.IsKind(err, dining.KindConflict))

	require.NoError(t, f.svc.RemoveMember(f.ctx, extra.ID))
	err = f.svc.RemoveMember(f.ctx, extra.ID)
	assert.True(t, dining.IsKind(err, dining.KindNotFound))

	dave := f.member(t, res.Session.ID, "Dave")
	linked, err := f.svc.AssociateUser(f.ctx, dave.ID, 42)
	require.NoError(t, err)
	require.NotNil(t, linked.UserID)
	assert.Equal(t, int64(42), *linked.UserID)

	removed, err := f.svc.RemoveGroupMembers(f.ctx, res.Group.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	group, err := f.svc.GetGroup(f.ctx, res.Group.ID)
	require.NoError(t, err)
	assert.Len(t, group.Members, 3)

	_, err = f.svc.CreateGroup(f.ctx, res.Session.ID, nil)
	assert.True(t, dining.IsKind(err, dining.KindConflict))
}

func TestAddMemberRequiresActiveSession(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, f.tables[0])
	_, err := f.svc.EndSession(f.ctx, dining.EndSessionInput{SessionID: res.Session.ID, ActingAdminID: adminID})
	require.NoError(t, err)

	_, err = f.svc.AddMember(f.ctx, dining.AddMemberInput{SessionID: res.Session.ID, Name: "Late"})
	assert.True(t, dining.IsKind(err, dining.KindConflict))

	_, err = f.svc.CreateOrder(f.ctx, dining.CreateOrderInput{SessionID: res.Session.ID})
	assert.True(t, dining.IsKind(err, dining.KindConflict))
}

func TestAddOrderItem(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, f.tables[0])
	other := f.start(t, f.tables[1])
	stranger := f.member(t, other.Session.ID, "Stranger")

	order, err := f.svc.CreateOrder(f.ctx, dining.CreateOrderInput{SessionID: res.Session.ID})
	require.NoError(t, err)
	assert.Equal(t, dining.OrderDraft, order.Status)
	require.NotNil(t, order.GroupID)
	assert.Equal(t, res.Group.ID, *order.GroupID)

	item, err := f.svc.AddOrderItem(f.ctx, dining.AddOrderItemInput{
		OrderID:        order.ID,
		OrderItemInput: dining.OrderItemInput{MenuItemID: f.menuA.ID, Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, res.Owner.ID, item.MemberID)
	assert.Equal(t, dining.ItemPending, item.Status)

	cases := []struct {
		name string
		in   dining.OrderItemInput
		kind dining.Kind
	}{
		{"unavailable menu item", dining.OrderItemInput{MenuItemID: f.soldOut.ID, Quantity: 1}, dining.KindValidation},
		{"zero quantity", dining.OrderItemInput{MenuItemID: f.menuA.ID, Quantity: 0}, dining.KindValidation},
		{"unknown menu item", dining.OrderItemInput{MenuItemID: 424242, Quantity: 1}, dining.KindNotFound},
		{"member from another session", dining.OrderItemInput{MenuItemID: f.menuA.ID, Quantity: 1, MemberID: &stranger.ID}, dining.KindConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.AddOrderItem(f.ctx, dining.AddOrderItemInput{OrderID: order.ID, OrderItemInput: tc.in})
			assert.True(t, dining.IsKind(err, tc.kind), "got %v", err)
		})
	}

	items, err := f.svc.GetOrderItemsByOrder(f.ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items.Items, 1)
	assert.Equal(t, "Pad Thai", items.Items[0].MenuName)
	assert.Equal(t, "Owner", items.Items[0].MemberName)

	_, err = f.svc.AddOrderItem(f.ctx, dining.AddOrderItemInput{OrderID: 999999, OrderItemInput: dining.OrderItemInput{MenuItemID: f.menuA.ID, Quantity: 1}})
	assert.True(t, dining.IsKind(err, dining.KindNotFound))
}

func TestUnavailableItemWritesNothing(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, f.tables[0])

	_, err := f.svc.CreateOrderWithItems(f.ctx, dining.CreateOrderWithItemsInput{
		CreateOrderInput: dining.CreateOrderInput{SessionID: res.Session.ID},
		Items: []dining.OrderItemInput{
			{MenuItemID: f.menuA.ID, Quantity: 1},
			{MenuItemID: f.soldOut.ID, Quantity: 1},
		},
	})
	require.Error(t, err)
	assert.True(t, dining.IsKind(err, dining.KindValidation))
	assert.Contains(t, err.Error(), "not available")

	orders, err := f.svc.ListOrdersBySession(f.ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)

	lines, err := f.svc.GetOrderItemsBySession(f.ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestOrderStatusUpdates(t *testing.T) {
	f := newFixture(t)
	_, _, _, order := f.scenarioOrder(t)
	assert.Equal(t, dining.OrderPending, order.Order.Status)

	updated, err := f.svc.UpdateOrderStatus(f.ctx, order.Order.ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, dining.OrderCompleted, updated.Status)

	same, err := f.svc.UpdateOrderStatus(f.ctx, order.Order.ID, "COMPLETED")
	require.NoError(t, err)
	assert.Equal(t, dining.OrderCompleted, same.Status)

	_, err = f.svc.UpdateOrderStatus(f.ctx, order.Order.ID, "PREPARING")
	assert.True(t, dining.IsKind(err, dining.KindConflict))

	_, err = f.svc.UpdateOrderStatus(f.ctx, order.Order.ID, "SERVED")
	assert.True(t, dining.IsKind(err, dining.KindValidation))

	_, err = f.svc.AddOrderItem(f.ctx, dining.AddOrderItemInput{
		OrderID:        order.Order.ID,
		OrderItemInput: dining.OrderItemInput{MenuItemID: f.menuA.ID, Quantity: 1},
	})
	assert.True(t, dining.IsKind(err, dining.KindConflict))

	assert.Contains(t, f.pub.types(), dining.EventOrderStatusUpdated)
}

func TestItemStatusUpdates(t *testing.T) {
	f := newFixture(t)
	_, _, _, order := f.scenarioOrder(t)
	itemID := order.Items[0].ID

	item, err := f.svc.UpdateItemStatus(f.ctx, itemID, "preparing")
	require.NoError(t, err)
	assert.Equal(t, dining.ItemPreparing, item.Status)

	item, err = f.svc.UpdateItemStatus(f.ctx, itemID, "CANCELLED")
	require.NoError(t, err)
	assert.Equal(t, dining.ItemCancelled, item.Status)

	_, err = f.svc.UpdateItemStatus(f.ctx, itemID, "PREPARING")
	assert.True(t, dining.IsKind(err, dining.KindConflict))

	_, err = f.svc.UpdateItemStatus(f.ctx, itemID, "EATEN")
	assert.True(t, dining.IsKind(err, dining.KindValidation))

	// Cancelled lines are not billed.
	bill, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
	require.NoError(t, err)
	money(t, "50.00", bill.Subtotal)
}

func TestGenerateBillIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, m1, m2, order := f.scenarioOrder(t)

	bill, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
	require.NoError(t, err)
	money(t, "250.00", bill.Subtotal)
	money(t, "17.50", bill.ServiceCharge)
	money(t, "0.00", bill.VAT)
	money(t, "267.50", bill.Total)
	assert.Equal(t, dining.BillUnpaid, bill.Status)

	require.Len(t, bill.Splits, 2)
	money(t, "208.75", splitFor(t, bill.Splits, m1.ID).Amount)
	money(t, "58.75", splitFor(t, bill.Splits, m2.ID).Amount)
	assert.Equal(t, "Alice", splitFor(t, bill.Splits, m1.ID).MemberName)

	for i := 0; i < 3; i++ {
		again, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
		require.NoError(t, err)
		assert.Equal(t, bill.ID, again.ID)
		assert.Len(t, again.Splits, 2)
	}

	count := 0
	for _, typ := range f.pub.types() {
		if typ == dining.EventBillGenerated {
			count++
		}
	}
	assert.Equal(t, 1, count)

	_, err = f.svc.AddOrderItem(f.ctx, dining.AddOrderItemInput{
		OrderID:        order.Order.ID,
		OrderItemInput: dining.OrderItemInput{MenuItemID: f.menuA.ID, Quantity: 1},
	})
	assert.True(t, dining.IsKind(err, dining.KindConflict))
}

func TestGenerateBillRejectsEmptyOrder(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, f.tables[0])
	order, err := f.svc.CreateOrder(f.ctx, dining.CreateOrderInput{SessionID: res.Session.ID})
	require.NoError(t, err)

	_, err = f.svc.GenerateBill(f.ctx, order.ID)
	assert.True(t, dining.IsKind(err, dining.KindValidation))

	_, err = f.svc.GenerateBill(f.ctx, 123456)
	assert.True(t, dining.IsKind(err, dining.KindNotFound))
}

func TestPreviewMatchesSessionBill(t *testing.T) {
	f := newFixture(t)
	res, _, _, _ := f.scenarioOrder(t)

	preview, err := f.svc.CalculateBillPreview(f.ctx, res.Session.ID)
	require.NoError(t, err)
	money(t, "267.50", preview.Total)

	orders, err := f.svc.ListOrdersBySession(f.ctx, res.Session.ID)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	bill, err := f.svc.GenerateBillForSession(f.ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Nil(t, bill.OrderID)
	assert.True(t, preview.Total.Equal(bill.Total))
	assert.True(t, preview.Subtotal.Equal(bill.Subtotal))

	again, err := f.svc.GenerateBillForSession(f.ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, bill.ID, again.ID)

	_, err = f.svc.CreateOrder(f.ctx, dining.CreateOrderInput{SessionID: res.Session.ID})
	assert.True(t, dining.IsKind(err, dining.KindConflict))
}

func TestSplitPaymentsCascadeToSession(t *testing.T) {
	f := newFixture(t)
	res, m1, m2, order := f.scenarioOrder(t)

	bill, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
	require.NoError(t, err)

	p1, err := f.svc.CreateQRPayment(f.ctx, dining.CreateQRPaymentInput{BillID: bill.ID, MemberID: &m1.ID})
	require.NoError(t, err)
	assert.Equal(t, dining.PaymentPending, p1.Payment.Status)
	money(t, "208.75", p1.Payment.Amount)
	assert.Contains(t, p1.Payment.Payload, "5406208.75")

	rec, err := f.svc.ConfirmPayment(f.ctx, p1.Payment.ID)
	require.NoError(t, err)
	assert.False(t, rec.BillPaid)
	assert.Equal(t, dining.BillUnpaid, rec.Bill.Status)
	assert.Equal(t, dining.SessionActive, rec.Session.Status)

	splits, err := f.svc.GetSplit(f.ctx, bill.ID)
	require.NoError(t, err)
	assert.True(t, splitFor(t, splits, m1.ID).Paid)
	assert.False(t, splitFor(t, splits, m2.ID).Paid)

	_, err = f.svc.CreateQRPayment(f.ctx, dining.CreateQRPaymentInput{BillID: bill.ID, MemberID: &m1.ID})
	assert.True(t, dining.IsKind(err, dining.KindConflict))

	_, err = f.svc.CalculateSplit(f.ctx, bill.ID, nil)
	assert.True(t, dining.IsKind(err, dining.KindConflict))

	p2, err := f.svc.CreateQRPayment(f.ctx, dining.CreateQRPaymentInput{BillID: bill.ID, MemberID: &m2.ID})
	require.NoError(t, err)
	money(t, "58.75", p2.Payment.Amount)

	rec, err = f.svc.MockCallback(f.ctx, p2.Payment.ID)
	require.NoError(t, err)
	assert.True(t, rec.BillPaid)
	assert.True(t, rec.SessionCompleted)
	assert.Equal(t, dining.BillPaid, rec.Bill.Status)
	assert.Equal(t, dining.SessionCompleted, rec.Session.Status)
	money(t, "267.50", rec.Session.Total)

	// Redelivered callback changes nothing.
	dup, err := f.svc.ConfirmPayment(f.ctx, p2.Payment.ID)
	require.NoError(t, err)
	assert.True(t, dup.AlreadyPaid)
	money(t, "267.50", dup.Session.Total)

	detail, err := f.svc.GetSession(f.ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, dining.SessionCompleted, detail.Session.Status)
	money(t, "267.50", detail.Session.Total)

	tables, err := f.svc.ListTablesWithStatus(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, dining.TableFree, tables[0].Occupancy)

	status, err := f.svc.GetPaymentStatus(f.ctx, bill.ID, &m2.ID)
	require.NoError(t, err)
	assert.Equal(t, p2.Payment.ID, status.ID)
	assert.Equal(t, dining.PaymentPaid, status.Status)

	_, err = f.svc.CreateQRPayment(f.ctx, dining.CreateQRPaymentInput{BillID: bill.ID})
	assert.True(t, dining.IsKind(err, dining.KindConflict))

	types := f.pub.types()
	assert.Contains(t, types, dining.EventPaymentConfirmed)
	assert.Equal(t, dining.EventSessionCompleted, types[len(types)-1])
}

func TestPaymentStatusPrefersPaidRow(t *testing.T) {
	f := newFixture(t)
	_, m1, _, order := f.scenarioOrder(t)
	bill, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
	require.NoError(t, err)

	first, err := f.svc.CreateQRPayment(f.ctx, dining.CreateQRPaymentInput{BillID: bill.ID, MemberID: &m1.ID})
	require.NoError(t, err)
	_, err = f.svc.CreateQRPayment(f.ctx, dining.CreateQRPaymentInput{BillID: bill.ID, MemberID: &m1.ID})
	require.NoError(t, err)
	_, err = f.svc.ConfirmPayment(f.ctx, first.Payment.ID)
	require.NoError(t, err)

	status, err := f.svc.GetPaymentStatus(f.ctx, bill.ID, &m1.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Payment.ID, status.ID)

	_, err = f.svc.GetPaymentStatus(f.ctx, bill.ID, int64Ptr(999))
	assert.True(t, dining.IsKind(err, dining.KindNotFound))
}

func TestEntireBillModeAndSwitching(t *testing.T) {
	f := newFixture(t)
	res, _, _, _ := f.scenarioOrder(t)

	split, err := f.svc.SplitBillForSession(f.ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Len(t, split.Splits, 2)

	entire, err := f.svc.PayEntireBill(f.ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, split.ID, entire.ID)
	assert.Empty(t, entire.Splits)

	pay, err := f.svc.CreateQRPayment(f.ctx, dining.CreateQRPaymentInput{BillID: entire.ID})
	require.NoError(t, err)
	assert.Nil(t, pay.Payment.BillSplitID)
	money(t, "267.50", pay.Payment.Amount)

	rec, err := f.svc.ConfirmPayment(f.ctx, pay.Payment.ID)
	require.NoError(t, err)
	assert.True(t, rec.BillPaid)
	assert.True(t, rec.SessionCompleted)

	orders, err := f.svc.ListOrdersBySession(f.ctx, res.Session.ID)
	require.NoError(t, err)
	for _, o := range orders {
		assert.Equal(t, dining.OrderClosed, o.Status)
	}

	_, err = f.svc.SplitBillForSession(f.ctx, res.Session.ID)
	assert.True(t, dining.IsKind(err, dining.KindConflict))
}

func TestFullPaymentMarksSplitsPaid(t *testing.T) {
	f := newFixture(t)
	_, _, _, order := f.scenarioOrder(t)
	bill, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
	require.NoError(t, err)

	pay, err := f.svc.CreateQRPayment(f.ctx, dining.CreateQRPaymentInput{BillID: bill.ID})
	require.NoError(t, err)
	money(t, "267.50", pay.Payment.Amount)

	rec, err := f.svc.ConfirmPayment(f.ctx, pay.Payment.ID)
	require.NoError(t, err)
	assert.True(t, rec.BillPaid)

	splits, err := f.svc.GetSplit(f.ctx, bill.ID)
	require.NoError(t, err)
	for _, s := range splits {
		assert.True(t, s.Paid)
	}

	got, err := f.svc.GetOrderItemsByOrder(f.ctx, order.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, dining.OrderClosed, got.Order.Status)
}

func TestCalculateSplitAndCancel(t *testing.T) {
	f := newFixture(t)
	_, m1, m2, order := f.scenarioOrder(t)
	bill, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
	require.NoError(t, err)

	override := decimal.NewFromInt(10)
	recomputed, err := f.svc.CalculateSplit(f.ctx, bill.ID, &override)
	require.NoError(t, err)
	money(t, "205.00", splitFor(t, recomputed.Splits, m1.ID).Amount)
	money(t, "55.00", splitFor(t, recomputed.Splits, m2.ID).Amount)

	negative := decimal.NewFromInt(-1)
	_, err = f.svc.CalculateSplit(f.ctx, bill.ID, &negative)
	assert.True(t, dining.IsKind(err, dining.KindValidation))

	cancelled, err := f.svc.CancelSplit(f.ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, dining.BillUnpaid, cancelled.Status)

	got, err := f.svc.GetBill(f.ctx, bill.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Splits)

	_, err = f.svc.CancelSplit(f.ctx, 999999)
	assert.True(t, dining.IsKind(err, dining.KindNotFound))
}

func TestSplitSumWithThreeMembers(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, f.tables[0])
	a := f.member(t, res.Session.ID, "A")
	b := f.member(t, res.Session.ID, "B")
	c := f.member(t, res.Session.ID, "C")

	order, err := f.svc.CreateOrderWithItems(f.ctx, dining.CreateOrderWithItemsInput{
		CreateOrderInput: dining.CreateOrderInput{SessionID: res.Session.ID},
		Items: []dining.OrderItemInput{
			{MenuItemID: f.menuA.ID, Quantity: 1, MemberID: &a.ID},
			{MenuItemID: f.menuB.ID, Quantity: 1, MemberID: &b.ID},
			{MenuItemID: f.menuB.ID, Quantity: 1, MemberID: &c.ID},
		},
	})
	require.NoError(t, err)

	bill, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
	require.NoError(t, err)
	money(t, "214.00", bill.Total)

	sum := decimal.Zero
	for _, s := range bill.Splits {
		sum = sum.Add(s.Amount)
	}
	assert.True(t, sum.Equal(bill.Total), "sum %s total %s", sum, bill.Total)
	money(t, "104.66", splitFor(t, bill.Splits, a.ID).Amount)
}

func int64Ptr(v int64) *int64 {
	return &v
}

func TestGetBillReceipt(t *testing.T) {
	f := newFixture(t)
	_, m1, _, order := f.scenarioOrder(t)

	bill, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
	require.NoError(t, err)

	r, err := f.svc.GetBillReceipt(f.ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, f.tables[0].Number, r.Table.Number)
	assert.Len(t, r.Lines, 2)
	assert.Len(t, r.Splits, 2)
	assert.Nil(t, r.Payment)

	qr, err := f.svc.CreateQRPayment(f.ctx, dining.CreateQRPaymentInput{BillID: bill.ID, MemberID: &m1.ID})
	require.NoError(t, err)
	r, err = f.svc.GetBillReceipt(f.ctx, bill.ID)
	require.NoError(t, err)
	require.NotNil(t, r.Payment)
	assert.Equal(t, qr.Payment.ID, r.Payment.ID)

	_, err = f.svc.GetBillReceipt(f.ctx, 999)
	assert.True(t, dining.IsKind(err, dining.KindNotFound))
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var de *dining.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dining.KindConflict, de.Kind)
	assert.Equal(t, code, de.Code)
}

func TestBilledItemsCannotBeCancelled(t *testing.T) {
	f := newFixture(t)
	_, m1, m2, order := f.scenarioOrder(t)
	bill, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateItemStatus(f.ctx, order.Items[1].ID, "CANCELLED")
	requireCode(t, err, "ORDER_BILLED")

	// Kitchen progress on billed items is still allowed.
	_, err = f.svc.UpdateItemStatus(f.ctx, order.Items[1].ID, "PREPARING")
	require.NoError(t, err)

	recomputed, err := f.svc.CalculateSplit(f.ctx, bill.ID, nil)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, sp := range recomputed.Splits {
		sum = sum.Add(sp.Amount)
	}
	money(t, "267.50", sum)
	money(t, "208.75", splitFor(t, recomputed.Splits, m1.ID).Amount)
	money(t, "58.75", splitFor(t, recomputed.Splits, m2.ID).Amount)
}

func TestSessionBilledItemsCannotBeCancelled(t *testing.T) {
	f := newFixture(t)
	res, _, _, order := f.scenarioOrder(t)
	_, err := f.svc.SplitBillForSession(f.ctx, res.Session.ID)
	require.NoError(t, err)

	_, err = f.svc.UpdateItemStatus(f.ctx, order.Items[0].ID, "CANCELLED")
	requireCode(t, err, "SESSION_ALREADY_BILLED")

	items, err := f.svc.GetOrderItemsByOrder(f.ctx, order.Order.ID)
	require.NoError(t, err)
	for _, it := range items.Items {
		assert.NotEqual(t, dining.ItemCancelled, it.Status)
	}
}

func TestCompletedSessionRejectsNewOrderBills(t *testing.T) {
	f := newFixture(t)
	res, m1, _, first := f.scenarioOrder(t)
	second, err := f.svc.CreateOrderWithItems(f.ctx, dining.CreateOrderWithItemsInput{
		CreateOrderInput: dining.CreateOrderInput{SessionID: res.Session.ID, TableID: f.tables[0].ID},
		Items:            []dining.OrderItemInput{{MenuItemID: f.menuA.ID, Quantity: 1, MemberID: &m1.ID}},
	})
	require.NoError(t, err)

	bill, err := f.svc.GenerateBill(f.ctx, first.Order.ID)
	require.NoError(t, err)
	pay, err := f.svc.CreateQRPayment(f.ctx, dining.CreateQRPaymentInput{BillID: bill.ID})
	require.NoError(t, err)
	rec, err := f.svc.ConfirmPayment(f.ctx, pay.Payment.ID)
	require.NoError(t, err)
	require.True(t, rec.SessionCompleted)

	_, err = f.svc.GenerateBill(f.ctx, second.Order.ID)
	requireCode(t, err, "SESSION_CLOSED")

	// The settled bill is still returned as is.
	again, err := f.svc.GenerateBill(f.ctx, first.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, bill.ID, again.ID)

	detail, err := f.svc.GetSession(f.ctx, res.Session.ID)
	require.NoError(t, err)
	money(t, "267.50", detail.Session.Total)
}

func TestConfirmAfterSplitRecomputeConflicts(t *testing.T) {
	f := newFixture(t)
	_, m1, _, order := f.scenarioOrder(t)
	bill, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
	require.NoError(t, err)

	pending, err := f.svc.CreateQRPayment(f.ctx, dining.CreateQRPaymentInput{BillID: bill.ID, MemberID: &m1.ID})
	require.NoError(t, err)

	// Recomputing replaces the split rows the pending payment points at.
	_, err = f.svc.CalculateSplit(f.ctx, bill.ID, nil)
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(f.ctx, pending.Payment.ID)
	requireCode(t, err, "SPLIT_REPLACED")

	splits, err := f.svc.GetSplit(f.ctx, bill.ID)
	require.NoError(t, err)
	for _, sp := range splits {
		assert.False(t, sp.Paid)
	}
	got, err := f.svc.GetBill(f.ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, dining.BillUnpaid, got.Status)

	status, err := f.svc.GetPaymentStatus(f.ctx, bill.ID, &m1.ID)
	require.NoError(t, err)
	assert.Equal(t, dining.PaymentPending, status.Status)
}

func TestConcurrentGenerateBillConverges(t *testing.T) {
	f := newFixture(t)
	_, _, _, order := f.scenarioOrder(t)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[int64]int{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bill, err := f.svc.GenerateBill(f.ctx, order.Order.ID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[bill.ID]++
		}()
	}
	wg.Wait()

	require.Len(t, ids, 1)
	for _, n := range ids {
		assert.Equal(t, 8, n)
	}

	generated := 0
	for _, typ := range f.pub.types() {
		if typ == dining.EventBillGenerated {
			generated++
		}
	}
	assert.Equal(t, 1, generated)
}

type stubRenderer struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (r *stubRenderer) RenderQR(_ context.Context, name, payload string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	if r.err != nil {
		return "", r.err
	}
	return "https://cdn.example.com/qr/" + name + ".png", nil
}

func TestQRImagesRenderedAfterCommit(t *testing.T) {
	f := newFixture(t)
	renderer := &stubRenderer{}
	svc := dining.NewService(f.store, dining.Options{
		ClientBaseURL: "https://dine.example.com",
		PromptPayID:   "0812345678",
		Encoder:       promptpay.Encoder{},
		Renderer:      renderer,
	})

	res, err := svc.StartSession(f.ctx, dining.StartSessionInput{TableID: f.tables[2].ID, ActingAdminID: adminID})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/qr/sessions/"+res.Session.QRToken+".png", res.QRImage)

	// An upload failure does not undo the committed session.
	renderer.err = errors.New("bucket unavailable")
	other, err := svc.StartSession(f.ctx, dining.StartSessionInput{TableID: f.tables[1].ID, ActingAdminID: adminID})
	require.NoError(t, err)
	assert.Empty(t, other.QRImage)
	assert.Equal(t, "https://dine.example.com/session/"+other.Session.QRToken, other.QRPayload)

	_, err = svc.GetSessionByToken(f.ctx, other.Session.QRToken)
	require.NoError(t, err)
	assert.Len(t, renderer.names, 2)
}
