package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"dinein-service/internal/config"
	"dinein-service/internal/http/handlers"
	"dinein-service/internal/middleware"
)

func NewRouter(h *handlers.Handler, logger *zap.Logger, cfg config.Config) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Telemetry(logger))

	if cfg.Env == "development" || len(cfg.CorsAllowedOrigins) > 0 {
		options := cors.Options{
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{
				"Accept",
				"Authorization",
				"Content-Type",
				"X-Requested-With",
				"X-Request-Id",
				"Cache-Control",
			},
			ExposedHeaders:   []string{"X-Request-Id", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           300,
		}
		if cfg.Env == "development" {
			options.AllowOriginFunc = func(_ *http.Request, origin string) bool {
				return true
			}
		} else {
			options.AllowedOrigins = cfg.CorsAllowedOrigins
		}
		r.Use(cors.Handler(options))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.JWTSecret))

		r.Get("/tables", h.AdminTablesList)
		r.Post("/tables", h.AdminTableCreate)
		r.Post("/tables/{tableId}/sessions", h.AdminSessionStart)
		r.Post("/tables/{tableId}/end-session", h.AdminTableSessionEnd)

		r.Get("/sessions/active", h.AdminSessionsActive)
		r.Post("/sessions/{sessionId}/end", h.AdminSessionEnd)
		r.Post("/sessions/{sessionId}/orders/close", h.AdminSessionOrdersClose)

		r.Delete("/groups/{groupId}/members", h.AdminGroupMembersRemove)

		r.Patch("/orders/{orderId}/status", h.AdminOrderStatusUpdate)
		r.Patch("/order-items/{itemId}/status", h.AdminOrderItemStatusUpdate)
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalUserAuth(cfg.JWTSecret))

			r.Get("/sessions/token/{token}", h.SessionByToken)
			r.Get("/sessions/{sessionId}", h.SessionGet)
			r.Post("/sessions/{sessionId}/group", h.GroupCreate)
			r.Post("/sessions/{sessionId}/members", h.MemberAdd)
			r.Get("/sessions/{sessionId}/orders", h.OrdersBySession)
			r.Get("/sessions/{sessionId}/items", h.OrderItemsBySession)
			r.Get("/sessions/{sessionId}/bill/preview", h.BillPreview)
			r.Post("/sessions/{sessionId}/bill", h.BillGenerateForSession)
			r.Post("/sessions/{sessionId}/split-bill", h.SessionSplitBill)
			r.Post("/sessions/{sessionId}/pay-entire", h.SessionPayEntire)

			r.Get("/groups/{groupId}", h.GroupGet)
			r.Delete("/members/{memberId}", h.MemberRemove)
			r.Post("/members/{memberId}/associate", h.MemberAssociate)

			r.Post("/orders", h.OrderCreate)
			r.Post("/orders/with-items", h.OrderCreateWithItems)
			r.Get("/orders/{orderId}/items", h.OrderItemsByOrder)
			r.Post("/orders/{orderId}/items", h.OrderItemAdd)
			r.Post("/orders/{orderId}/bill", h.BillGenerateForOrder)

			r.Get("/bills/{billId}", h.BillGet)
			r.Get("/bills/{billId}/receipt.pdf", h.BillReceiptPDF)
			r.Get("/bills/{billId}/split", h.SplitGet)
			r.Post("/bills/{billId}/split", h.SplitCalculate)
			r.Delete("/bills/{billId}/split", h.SplitCancel)
			r.Post("/bills/{billId}/payments", h.PaymentCreateQR)
			r.Get("/bills/{billId}/payment-status", h.PaymentStatus)

			r.Post("/payments/{paymentId}/mock-callback", h.PaymentMockCallback)
		})

		r.With(middleware.CallbackAuth(cfg.PaymentCallbackSecret)).Post("/payments/callback", h.PaymentCallback)
	})

	return r
}
