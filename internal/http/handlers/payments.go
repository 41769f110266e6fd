package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"dinein-service/internal/dining"
	"dinein-service/internal/queue"
	"dinein-service/pkg/response"
)

func toReconciliation(rec dining.Reconciliation) map[string]any {
	return map[string]any{
		"payment":          toPayment(rec.Payment),
		"bill":             toBill(rec.Bill),
		"session":          toSession(rec.Session),
		"billPaid":         rec.BillPaid,
		"sessionCompleted": rec.SessionCompleted,
		"alreadyPaid":      rec.AlreadyPaid,
	}
}

func (h *Handler) PaymentCreateQR(w http.ResponseWriter, r *http.Request) {
	billID, ok := pathID(w, r, "billId")
	if !ok {
		return
	}
	var body struct {
		MemberID *int64 `json:"memberId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	qr, err := h.Service.CreateQRPayment(r.Context(), dining.CreateQRPaymentInput{BillID: billID, MemberID: body.MemberID})
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Created(w, map[string]any{
		"payment": toPayment(qr.Payment),
		"qrImage": qr.QRImage,
	})
}

func (h *Handler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	billID, ok := pathID(w, r, "billId")
	if !ok {
		return
	}
	memberID, err := queryInt64(r, "memberId")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid memberId")
		return
	}
	payment, err := h.Service.GetPaymentStatus(r.Context(), billID, memberID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toPayment(payment))
}

// PaymentMockCallback simulates the bank confirming a payment. Disabled unless mock payments
// are allowed.
func (h *Handler) PaymentMockCallback(w http.ResponseWriter, r *http.Request) {
	if !h.Config.AllowMockPaymentTrigger {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Not found")
		return
	}
	paymentID, ok := pathID(w, r, "paymentId")
	if !ok {
		return
	}
	rec, err := h.Service.MockCallback(r.Context(), paymentID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toReconciliation(rec))
}

// PaymentCallback receives the bank gateway webhook. With a queue configured the callback is
// enqueued and acknowledged with 202; otherwise it is confirmed inline.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var body queue.PaymentCallback
	if !decodeBody(w, r, &body) {
		return
	}
	if body.PaymentID <= 0 {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "paymentId is required")
		return
	}

	if h.Queue != nil {
		err := h.Queue.PublishJSON(r.Context(), queue.PaymentCallbacksExchange, queue.PaymentCallbacksRK, body)
		if err == nil {
			response.JSON(w, http.StatusAccepted, map[string]any{
				"success": true,
				"data":    map[string]any{"paymentId": body.PaymentID, "queued": true},
			})
			return
		}
		h.Logger.Warn("payment callback enqueue failed, confirming inline", zap.Int64("paymentId", body.PaymentID), zap.Error(err))
	}

	rec, err := h.Service.ConfirmPayment(r.Context(), body.PaymentID)
	if err != nil {
		response.DomainError(w, err)
		return
	}
	response.Success(w, toReconciliation(rec))
}
