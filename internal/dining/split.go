package dining

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

type memberShare struct {
	MemberID int64
	Amount   decimal.Decimal
}

// computeSplits charges each member their own items plus an even share of the service charge.
// Whatever the rounded shares leave over against target goes to the largest share (lowest
// member id on ties), so the shares always sum exactly to target.
func computeSplits(lines []OrderItemLine, serviceCharge decimal.Decimal, target decimal.Decimal) []memberShare {
	subtotals := make(map[int64]decimal.Decimal)
	for _, line := range lines {
		subtotals[line.MemberID] = subtotals[line.MemberID].Add(line.LineTotal())
	}
	if len(subtotals) == 0 {
		return nil
	}

	shares := make([]memberShare, 0, len(subtotals))
	for memberID, sub := range subtotals {
		shares = append(shares, memberShare{MemberID: memberID, Amount: sub})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].MemberID < shares[j].MemberID })

	perMember := round2(serviceCharge.Div(decimal.NewFromInt(int64(len(shares)))))
	sum := decimal.Zero
	largest := 0
	for i := range shares {
		shares[i].Amount = round2(shares[i].Amount.Add(perMember))
		sum = sum.Add(shares[i].Amount)
		if shares[i].Amount.GreaterThan(shares[largest].Amount) {
			largest = i
		}
	}

	if remainder := round2(target).Sub(sum); !remainder.IsZero() {
		shares[largest].Amount = shares[largest].Amount.Add(remainder)
	}
	return shares
}

// splitTarget is what the splits of bill must add up to: the stored total, with serviceCharge
// standing in for the bill's own service charge.
func splitTarget(bill Bill, serviceCharge decimal.Decimal) decimal.Decimal {
	return bill.Total.Sub(bill.ServiceCharge).Add(serviceCharge)
}

// writeSplits replaces every split of the bill with a fresh per-member set.
func (s *Service) writeSplits(ctx context.Context, tx Tx, bill Bill, lines []OrderItemLine, serviceCharge decimal.Decimal) (BillWithSplits, error) {
	if err := tx.DeleteSplits(ctx, bill.ID); err != nil {
		return BillWithSplits{}, err
	}
	now := s.now()
	for _, share := range computeSplits(lines, serviceCharge, splitTarget(bill, serviceCharge)) {
		split := BillSplit{BillID: bill.ID, MemberID: share.MemberID, Amount: share.Amount, CreatedAt: now}
		if err := tx.InsertSplit(ctx, &split); err != nil {
			return BillWithSplits{}, err
		}
	}
	return withSplits(ctx, tx, bill)
}

// CalculateSplit recomputes the per-member splits of a bill. The override replaces the bill's
// service charge for this computation only.
func (s *Service) CalculateSplit(ctx context.Context, billID int64, serviceChargeOverride *decimal.Decimal) (BillWithSplits, error) {
	if serviceChargeOverride != nil && serviceChargeOverride.IsNegative() {
		return BillWithSplits{}, ValidationError("VALIDATION_ERROR", "Service charge cannot be negative")
	}

	var out BillWithSplits
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		bill, err := tx.LockBill(ctx, billID)
		if err != nil {
			return notFoundOr(err, "BILL_NOT_FOUND", "bill")
		}
		if err := ensureNothingPaid(ctx, tx, bill); err != nil {
			return err
		}
		lines, err := billLines(ctx, tx, bill)
		if err != nil {
			return err
		}
		serviceCharge := bill.ServiceCharge
		if serviceChargeOverride != nil {
			serviceCharge = round2(*serviceChargeOverride)
		}
		out, err = s.writeSplits(ctx, tx, bill, lines, serviceCharge)
		return err
	})
	return out, err
}

func (s *Service) GetSplit(ctx context.Context, billID int64) ([]SplitView, error) {
	var splits []SplitView
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetBill(ctx, billID); err != nil {
			return notFoundOr(err, "BILL_NOT_FOUND", "bill")
		}
		var err error
		splits, err = tx.ListSplits(ctx, billID)
		return err
	})
	return splits, err
}

// SplitBillForSession puts the session bill in per-member mode, generating the bill on demand.
func (s *Service) SplitBillForSession(ctx context.Context, sessionID int64) (BillWithSplits, error) {
	return s.switchMode(ctx, sessionID, func(ctx context.Context, tx Tx, bill Bill) (BillWithSplits, error) {
		lines, err := billLines(ctx, tx, bill)
		if err != nil {
			return BillWithSplits{}, err
		}
		return s.writeSplits(ctx, tx, bill, lines, bill.ServiceCharge)
	})
}

// PayEntireBill puts the session bill in single-payer mode: no splits, payment targets the bill.
func (s *Service) PayEntireBill(ctx context.Context, sessionID int64) (BillWithSplits, error) {
	return s.switchMode(ctx, sessionID, func(ctx context.Context, tx Tx, bill Bill) (BillWithSplits, error) {
		if err := tx.DeleteSplits(ctx, bill.ID); err != nil {
			return BillWithSplits{}, err
		}
		return BillWithSplits{Bill: bill, Splits: []SplitView{}}, nil
	})
}

func (s *Service) switchMode(ctx context.Context, sessionID int64, apply func(ctx context.Context, tx Tx, bill Bill) (BillWithSplits, error)) (BillWithSplits, error) {
	var (
		out     BillWithSplits
		created bool
	)
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		generated, isNew, err := s.ensureSessionBill(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		created = isNew

		bill, err := tx.LockBill(ctx, generated.ID)
		if err != nil {
			return err
		}
		if err := ensureNothingPaid(ctx, tx, bill); err != nil {
			return err
		}
		out, err = apply(ctx, tx, bill)
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

// CancelSplit drops the per-member rows and leaves the bill UNPAID in single-payer mode.
func (s *Service) CancelSplit(ctx context.Context, billID int64) (Bill, error) {
	var bill Bill
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		bill, err = tx.LockBill(ctx, billID)
		if err != nil {
			return notFoundOr(err, "BILL_NOT_FOUND", "bill")
		}
		if err := ensureNothingPaid(ctx, tx, bill); err != nil {
			return err
		}
		if err := tx.DeleteSplits(ctx, bill.ID); err != nil {
			return err
		}
		if err := tx.SetBillStatus(ctx, bill.ID, BillUnpaid); err != nil {
			return err
		}
		bill.Status = BillUnpaid
		return nil
	})
	return bill, err
}

// ensureNothingPaid fails once money has moved on the bill; rewriting splits then would erase a
// paid flag.
func ensureNothingPaid(ctx context.Context, tx Tx, bill Bill) error {
	if bill.Status == BillPaid {
		return ConflictError("BILL_PAID", "Bill is already paid")
	}
	paid, err := tx.CountPaidPayments(ctx, bill.ID)
	if err != nil {
		return err
	}
	if paid > 0 {
		return ConflictError("BILL_PARTIALLY_PAID", "Bill already has confirmed payments")
	}
	splits, err := tx.ListSplits(ctx, bill.ID)
	if err != nil {
		return err
	}
	for _, sp := range splits {
		if sp.Paid {
			return ConflictError("BILL_PARTIALLY_PAID", "Bill already has paid splits")
		}
	}
	return nil
}
