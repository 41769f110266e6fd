package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dinein-service/internal/config"
	"dinein-service/internal/dining"
	"dinein-service/internal/receipt"
)

// CallbackQueue accepts bank callbacks for asynchronous confirmation.
type CallbackQueue interface {
	PublishJSON(ctx context.Context, exchange, routingKey string, payload any) error
}

type Handler struct {
	Service *dining.Service
	Logger  *zap.Logger
	Config  config.Config
	Queue   CallbackQueue
	Receipt receipt.Header
}

func (h *Handler) receiptHeader() receipt.Header {
	hdr := h.Receipt
	if hdr.TimeZone == nil {
		hdr.TimeZone = time.UTC
	}
	return hdr
}
