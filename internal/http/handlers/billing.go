package handlers

import (
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dinein-service/internal/receipt"
	"dinein-service/pkg/response"
)

func (h *Handler) BillGenerateForOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r, "orderId")
	if !ok {
		return
	}
	bill, err := h.Service.GenerateBill(r.Context(), orderID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toBillWithSplits(bill))
}

func (h *Handler) BillGenerateForSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	bill, err := h.Service.GenerateBillForSession(r.Context(), sessionID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toBillWithSplits(bill))
}

func (h *Handler) BillPreview(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	totals, err := h.Service.CalculateBillPreview(r.Context(), sessionID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toTotals(totals))
}

func (h *Handler) BillGet(w http.ResponseWriter, r *http.Request) {
	billID, ok := pathID(w, r, "billId")
	if !ok {
		return
	}
	bill, err := h.Service.GetBill(r.Context(), billID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toBillWithSplits(bill))
}

func (h *Handler) BillReceiptPDF(w http.ResponseWriter, r *http.Request) {
	billID, ok := pathID(w, r, "billId")
	if !ok {
		return
	}
	data, err := h.Service.GetBillReceipt(r.Context(), billID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	pdf, err := receipt.Render(h.receiptHeader(), data)
	if err != nil {
		h.Logger.Error("receipt render failed", zap.Int64("billId", billID), zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to render receipt")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", receipt.Filename(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf.Bytes())
}

func (h *Handler) SplitCalculate(w http.ResponseWriter, r *http.Request) {
	billID, ok := pathID(w, r, "billId")
	if !ok {
		return
	}
	var body struct {
		ServiceCharge *decimal.Decimal `json:"serviceCharge"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	bill, err := h.Service.CalculateSplit(r.Context(), billID, body.ServiceCharge)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toBillWithSplits(bill))
}

func (h *Handler) SplitGet(w http.ResponseWriter, r *http.Request) {
	billID, ok := pathID(w, r, "billId")
	if !ok {
		return
	}
	splits, err := h.Service.GetSplit(r.Context(), billID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toSplits(splits))
}

func (h *Handler) SplitCancel(w http.ResponseWriter, r *http.Request) {
	billID, ok := pathID(w, r, "billId")
	if !ok {
		return
	}
	bill, err := h.Service.CancelSplit(r.Context(), billID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toBill(bill))
}

func (h *Handler) SessionSplitBill(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	bill, err := h.Service.SplitBillForSession(r.Context(), sessionID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toBillWithSplits(bill))
}

func (h *Handler) SessionPayEntire(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathID(w, r, "sessionId")
	if !ok {
		return
	}
	bill, err := h.Service.PayEntireBill(r.Context(), sessionID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toBillWithSplits(bill))
}
