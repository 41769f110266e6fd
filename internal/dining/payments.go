package dining

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreateQRPaymentInput struct {
	BillID   int64
	MemberID *int64
}

type QRPayment struct {
	Payment Payment
	QRImage string
}

// Reconciliation is the state after a confirmation, including what the cascade changed.
type Reconciliation struct {
	Payment          Payment
	Bill             Bill
	Session          DiningSession
	BillPaid         bool
	SessionCompleted bool
	AlreadyPaid      bool
}

// CreateQRPayment issues a PENDING payment for one member's split, or for whatever is still
// outstanding on the bill when no member is given.
func (s *Service) CreateQRPayment(ctx context.Context, in CreateQRPaymentInput) (QRPayment, error) {
	if s.encoder == nil {
		return QRPayment{}, InternalError("payment encoder is not configured", nil)
	}

	var out QRPayment
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		bill, err := tx.LockBill(ctx, in.BillID)
		if err != nil {
			return notFoundOr(err, "BILL_NOT_FOUND", "bill")
		}
		if bill.Status == BillPaid {
			return ConflictError("BILL_PAID", "Bill is already paid")
		}

		payment := Payment{
			BillID:    bill.ID,
			Method:    PaymentMethodQR,
			Status:    PaymentPending,
			CreatedAt: s.now(),
		}
		if in.MemberID != nil {
			split, err := tx.SplitByMember(ctx, bill.ID, *in.MemberID)
			if err != nil {
				return notFoundOr(err, "SPLIT_NOT_FOUND", "split")
			}
			if split.Paid {
				return ConflictError("SPLIT_PAID", "Split is already paid")
			}
			payment.BillSplitID = int64Ptr(split.ID)
			payment.MemberID = int64Ptr(split.MemberID)
			payment.Amount = split.Amount
		} else {
			if payment.Amount, err = outstanding(ctx, tx, bill); err != nil {
				return err
			}
		}

		payload, err := s.encoder.EncodePayment(s.promptPayID, payment.Amount)
		if err != nil {
			return InternalError("failed to encode payment payload", err)
		}
		payment.Payload = payload
		if err := tx.InsertPayment(ctx, &payment); err != nil {
			return err
		}

		out = QRPayment{Payment: payment}
		return nil
	})
	if err != nil {
		return QRPayment{}, err
	}
	out.QRImage = s.renderQR(ctx, fmt.Sprintf("payments/%d", out.Payment.ID), out.Payment.Payload)

	s.logger.Info("qr payment created",
		zap.Int64("paymentId", out.Payment.ID),
		zap.Int64("billId", out.Payment.BillID),
		zap.String("amount", out.Payment.Amount.StringFixed(2)),
	)
	return out, nil
}

// outstanding is the bill total in single-payer mode, or the sum of unpaid splits otherwise.
func outstanding(ctx context.Context, tx Tx, bill Bill) (decimal.Decimal, error) {
	splits, err := tx.ListSplits(ctx, bill.ID)
	if err != nil {
		return decimal.Zero, err
	}
	if len(splits) == 0 {
		return bill.Total, nil
	}
	sum := decimal.Zero
	for _, sp := range splits {
		if !sp.Paid {
			sum = sum.Add(sp.Amount)
		}
	}
	return sum, nil
}

// ConfirmPayment marks a payment PAID and cascades: split paid, then bill PAID once no split is
// outstanding, then session COMPLETED once no bill is UNPAID. Confirming a PAID payment again
// changes nothing, so bank callbacks may be redelivered safely.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID int64) (Reconciliation, error) {
	var rec Reconciliation
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		payment, err := tx.LockPayment(ctx, paymentID)
		if err != nil {
			return notFoundOr(err, "PAYMENT_NOT_FOUND", "payment")
		}
		// Lock order is session, then bill.
		bill, err := tx.GetBill(ctx, payment.BillID)
		if err != nil {
			return notFoundOr(err, "BILL_NOT_FOUND", "bill")
		}
		session, err := tx.LockSession(ctx, bill.DiningSessionID)
		if err != nil {
			return err
		}
		if bill, err = tx.LockBill(ctx, bill.ID); err != nil {
			return err
		}

		if payment.Status == PaymentPaid {
			rec = Reconciliation{Payment: payment, Bill: bill, Session: session, AlreadyPaid: true}
			return nil
		}

		paidAt := s.now()
		if err := tx.MarkPaymentPaid(ctx, payment.ID, paidAt); err != nil {
			return err
		}
		payment.Status = PaymentPaid
		payment.PaidAt = &paidAt

		if payment.BillSplitID != nil {
			if err := tx.MarkSplitPaid(ctx, *payment.BillSplitID); err != nil {
				if errors.Is(err, ErrNoRows) {
					return ConflictError("SPLIT_REPLACED", "The split for this payment no longer exists")
				}
				return err
			}
		} else if err := tx.MarkAllSplitsPaid(ctx, bill.ID); err != nil {
			return err
		}

		rec.Payment = payment
		rec.Bill = bill

		unpaid, err := tx.CountUnpaidSplits(ctx, bill.ID)
		if err != nil {
			return err
		}
		if unpaid == 0 && bill.Status != BillPaid {
			if err := s.settleBill(ctx, tx, &bill); err != nil {
				return err
			}
			rec.Bill = bill
			rec.BillPaid = true
		}

		if rec.BillPaid && session.Status == SessionActive {
			done, err := allBillsPaid(ctx, tx, session.ID)
			if err != nil {
				return err
			}
			if done {
				if session, err = s.completeSession(ctx, tx, session); err != nil {
					return err
				}
				rec.SessionCompleted = true
			}
		}
		rec.Session = session
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}

	if rec.AlreadyPaid {
		s.logger.Info("payment already confirmed", zap.Int64("paymentId", rec.Payment.ID))
		return rec, nil
	}

	s.logger.Info("payment confirmed",
		zap.Int64("paymentId", rec.Payment.ID),
		zap.Int64("billId", rec.Bill.ID),
		zap.Bool("billPaid", rec.BillPaid),
		zap.Bool("sessionCompleted", rec.SessionCompleted),
	)
	s.publish(ctx, Event{
		Type:      EventPaymentConfirmed,
		SessionID: rec.Bill.DiningSessionID,
		BillID:    int64Ptr(rec.Bill.ID),
		PaymentID: int64Ptr(rec.Payment.ID),
		Status:    string(rec.Bill.Status),
		Data: map[string]any{
			"amount":   rec.Payment.Amount.StringFixed(2),
			"billPaid": rec.BillPaid,
		},
		OccurredAt: *rec.Payment.PaidAt,
	})
	if rec.SessionCompleted {
		s.publishCompleted(ctx, rec.Session)
	}
	return rec, nil
}

// MockCallback simulates the bank webhook; it has the same effect as a manual confirmation.
func (s *Service) MockCallback(ctx context.Context, paymentID int64) (Reconciliation, error) {
	return s.ConfirmPayment(ctx, paymentID)
}

// settleBill marks the bill PAID and moves the orders it covers to PAID where that is forward.
func (s *Service) settleBill(ctx context.Context, tx Tx, bill *Bill) error {
	if err := tx.SetBillStatus(ctx, bill.ID, BillPaid); err != nil {
		return err
	}
	bill.Status = BillPaid

	var orders []Order
	if bill.OrderID != nil {
		order, err := tx.GetOrder(ctx, *bill.OrderID)
		if err != nil {
			return err
		}
		orders = []Order{order}
	} else {
		var err error
		if orders, err = tx.ListOrdersBySession(ctx, bill.DiningSessionID); err != nil {
			return err
		}
	}
	for _, o := range orders {
		if !o.Status.CanAdvanceTo(OrderPaid) {
			continue
		}
		if err := tx.SetOrderStatus(ctx, o.ID, OrderPaid); err != nil {
			return err
		}
	}
	return nil
}

func allBillsPaid(ctx context.Context, tx Tx, sessionID int64) (bool, error) {
	bills, err := tx.ListBillsBySession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	for _, b := range bills {
		if b.Status != BillPaid {
			return false, nil
		}
	}
	return true, nil
}

// GetPaymentStatus returns the authoritative payment for a bill, or for one member's split: the
// latest PAID row when there is one, otherwise the newest attempt.
func (s *Service) GetPaymentStatus(ctx context.Context, billID int64, memberID *int64) (Payment, error) {
	var payment Payment
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetBill(ctx, billID); err != nil {
			return notFoundOr(err, "BILL_NOT_FOUND", "bill")
		}
		var err error
		payment, err = tx.LatestPayment(ctx, billID, memberID)
		if err != nil {
			return notFoundOr(err, "PAYMENT_NOT_FOUND", "payment")
		}
		return nil
	})
	return payment, err
}
