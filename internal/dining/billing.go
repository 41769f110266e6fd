package dining

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// GenerateBill bills one order. A second call returns the stored bill and its current splits
// instead of charging again.
func (s *Service) GenerateBill(ctx context.Context, orderID int64) (BillWithSplits, error) {
	var (
		out     BillWithSplits
		created bool
	)
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, created, err = s.ensureOrderBill(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return BillWithSplits{}, err
	}
	if created {
		s.billGenerated(ctx, out.Bill)
	}
	return out, nil
}

// GenerateBillForSession bills every order of the session as one bill without an order id.
func (s *Service) GenerateBillForSession(ctx context.Context, sessionID int64) (BillWithSplits, error) {
	var (
		out     BillWithSplits
		created bool
	)
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, created, err = s.ensureSessionBill(ctx, tx, sessionID)
		return err
	})
	if err != nil {
		return BillWithSplits{}, err
	}
	if created {
		s.billGenerated(ctx, out.Bill)
	}
	return out, nil
}

// CalculateBillPreview prices the session's current items without writing anything.
func (s *Service) CalculateBillPreview(ctx context.Context, sessionID int64) (Totals, error) {
	var totals Totals
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetSession(ctx, sessionID); err != nil {
			return notFoundOr(err, "SESSION_NOT_FOUND", "session")
		}
		lines, err := tx.ListItemLinesBySession(ctx, sessionID)
		if err != nil {
			return err
		}
		totals = computeTotals(billableLines(lines), s.rate)
		return nil
	})
	return totals, err
}

func (s *Service) GetBill(ctx context.Context, billID int64) (BillWithSplits, error) {
	var out BillWithSplits
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		bill, err := tx.GetBill(ctx, billID)
		if err != nil {
			return notFoundOr(err, "BILL_NOT_FOUND", "bill")
		}
		out, err = withSplits(ctx, tx, bill)
		return err
	})
	return out, err
}

func (s *Service) ensureOrderBill(ctx context.Context, tx Tx, orderID int64) (BillWithSplits, bool, error) {
	order, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return BillWithSplits{}, false, notFoundOr(err, "ORDER_NOT_FOUND", "order")
	}
	session, err := tx.LockSession(ctx, order.DiningSessionID)
	if err != nil {
		return BillWithSplits{}, false, err
	}
	if order, err = tx.LockOrder(ctx, order.ID); err != nil {
		return BillWithSplits{}, false, err
	}
	if bill, err := tx.BillByOrder(ctx, order.ID); err == nil {
		out, err := withSplits(ctx, tx, bill)
		return out, false, err
	} else if !errors.Is(err, ErrNoRows) {
		return BillWithSplits{}, false, err
	}
	// A completed session has its total fixed; no new money may arrive on it.
	if session.Status != SessionActive {
		return BillWithSplits{}, false, ConflictError("SESSION_CLOSED", "Session is no longer active")
	}
	if order.Status == OrderClosed {
		return BillWithSplits{}, false, ConflictError("ORDER_CLOSED", "Order is closed")
	}
	if err := ensureNoSessionBill(ctx, tx, order.DiningSessionID); err != nil {
		return BillWithSplits{}, false, err
	}

	lines, err := tx.ListItemLinesByOrder(ctx, order.ID)
	if err != nil {
		return BillWithSplits{}, false, err
	}
	lines = billableLines(lines)
	if len(lines) == 0 {
		return BillWithSplits{}, false, ValidationError("ORDER_EMPTY", "Order has no items to bill")
	}

	bill := s.newBill(order.DiningSessionID, int64Ptr(order.ID), lines)
	if err := tx.InsertBill(ctx, &bill); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return BillWithSplits{}, false, err
		}
		winner, err := tx.BillByOrder(ctx, order.ID)
		if err != nil {
			return BillWithSplits{}, false, err
		}
		out, err := withSplits(ctx, tx, winner)
		return out, false, err
	}

	out, err := s.writeSplits(ctx, tx, bill, lines, bill.ServiceCharge)
	return out, true, err
}

func (s *Service) ensureSessionBill(ctx context.Context, tx Tx, sessionID int64) (BillWithSplits, bool, error) {
	session, err := tx.LockSession(ctx, sessionID)
	if err != nil {
		return BillWithSplits{}, false, notFoundOr(err, "SESSION_NOT_FOUND", "session")
	}
	if bill, err := tx.SessionBill(ctx, session.ID); err == nil {
		out, err := withSplits(ctx, tx, bill)
		return out, false, err
	} else if !errors.Is(err, ErrNoRows) {
		return BillWithSplits{}, false, err
	}
	if session.Status != SessionActive {
		return BillWithSplits{}, false, ConflictError("SESSION_CLOSED", "Session is no longer active")
	}

	existing, err := tx.ListBillsBySession(ctx, session.ID)
	if err != nil {
		return BillWithSplits{}, false, err
	}
	if len(existing) > 0 {
		return BillWithSplits{}, false, ConflictError("ORDERS_ALREADY_BILLED", "Orders of this session are already billed individually")
	}

	lines, err := tx.ListItemLinesBySession(ctx, session.ID)
	if err != nil {
		return BillWithSplits{}, false, err
	}
	lines = billableLines(lines)
	if len(lines) == 0 {
		return BillWithSplits{}, false, ValidationError("SESSION_EMPTY", "Session has no items to bill")
	}

	bill := s.newBill(session.ID, nil, lines)
	if err := tx.InsertBill(ctx, &bill); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return BillWithSplits{}, false, err
		}
		winner, err := tx.SessionBill(ctx, session.ID)
		if err != nil {
			return BillWithSplits{}, false, err
		}
		out, err := withSplits(ctx, tx, winner)
		return out, false, err
	}

	out, err := s.writeSplits(ctx, tx, bill, lines, bill.ServiceCharge)
	return out, true, err
}

func (s *Service) newBill(sessionID int64, orderID *int64, lines []OrderItemLine) Bill {
	totals := computeTotals(lines, s.rate)
	return Bill{
		OrderID:         orderID,
		DiningSessionID: sessionID,
		Subtotal:        totals.Subtotal,
		ServiceCharge:   totals.ServiceCharge,
		VAT:             totals.VAT,
		Total:           totals.Total,
		Status:          BillUnpaid,
		CreatedAt:       s.now(),
	}
}

// ensureNoSessionBill rejects work on a session whose items are already covered by a session bill.
func ensureNoSessionBill(ctx context.Context, tx Tx, sessionID int64) error {
	_, err := tx.SessionBill(ctx, sessionID)
	if err == nil {
		return ConflictError("SESSION_ALREADY_BILLED", "Session already has a bill")
	}
	if errors.Is(err, ErrNoRows) {
		return nil
	}
	return err
}

// BillReceipt is everything printed on a customer receipt.
type BillReceipt struct {
	BillWithSplits
	Table   Table
	Session DiningSession
	Lines   []OrderItemLine
	Payment *Payment
}

func (s *Service) GetBillReceipt(ctx context.Context, billID int64) (BillReceipt, error) {
	var out BillReceipt
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		bill, err := tx.GetBill(ctx, billID)
		if err != nil {
			return notFoundOr(err, "BILL_NOT_FOUND", "bill")
		}
		if out.BillWithSplits, err = withSplits(ctx, tx, bill); err != nil {
			return err
		}
		if out.Session, err = tx.GetSession(ctx, bill.DiningSessionID); err != nil {
			return err
		}
		if out.Table, err = tx.GetTable(ctx, out.Session.TableID); err != nil {
			return err
		}
		if out.Lines, err = billLines(ctx, tx, bill); err != nil {
			return err
		}
		payment, err := tx.LatestPayment(ctx, bill.ID, nil)
		switch {
		case err == nil:
			out.Payment = &payment
		case !errors.Is(err, ErrNoRows):
			return err
		}
		return nil
	})
	return out, err
}

func withSplits(ctx context.Context, tx Tx, bill Bill) (BillWithSplits, error) {
	splits, err := tx.ListSplits(ctx, bill.ID)
	if err != nil {
		return BillWithSplits{}, err
	}
	return BillWithSplits{Bill: bill, Splits: splits}, nil
}

// billLines returns the billable items a bill covers: its order, or the whole session.
func billLines(ctx context.Context, tx Tx, bill Bill) ([]OrderItemLine, error) {
	var (
		lines []OrderItemLine
		err   error
	)
	if bill.OrderID != nil {
		lines, err = tx.ListItemLinesByOrder(ctx, *bill.OrderID)
	} else {
		lines, err = tx.ListItemLinesBySession(ctx, bill.DiningSessionID)
	}
	if err != nil {
		return nil, err
	}
	return billableLines(lines), nil
}

func (s *Service) billGenerated(ctx context.Context, bill Bill) {
	s.logger.Info("bill generated",
		zap.Int64("billId", bill.ID),
		zap.Int64("sessionId", bill.DiningSessionID),
		zap.String("total", bill.Total.StringFixed(2)),
	)
	s.publish(ctx, Event{
		Type:      EventBillGenerated,
		SessionID: bill.DiningSessionID,
		OrderID:   bill.OrderID,
		BillID:    int64Ptr(bill.ID),
		Status:    string(bill.Status),
		Data: map[string]any{
			"subtotal":      bill.Subtotal.StringFixed(2),
			"serviceCharge": bill.ServiceCharge.StringFixed(2),
			"total":         bill.Total.StringFixed(2),
		},
		OccurredAt: bill.CreatedAt,
	})
}
