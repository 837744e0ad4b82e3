package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/safaricrafts/order-core/internal/httpx/middlewares"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.Trace)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Healthz)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", handler.GetCart)
		r.Delete("/", handler.ClearCart)
		r.Post("/items", handler.AddCartItem)
		r.Put("/items/{artworkID}", handler.SetCartItemQuantity)
		r.Delete("/items/{artworkID}", handler.RemoveCartItem)
	})

	r.Post("/checkout", handler.Checkout)

	r.Route("/orders/{id}", func(r chi.Router) {
		r.Get("/", handler.GetOrder)
		r.Get("/history", handler.GetOrderHistory)
		r.Post("/cancel", handler.CancelOrder)
		r.Post("/refund", handler.RefundOrder)
		r.Post("/complete", handler.CompleteOrder)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Post("/initialize", handler.InitializePayment)
		r.Post("/mobile", handler.InitiateMobilePayment)
		r.Get("/{id}/status", handler.GetPaymentStatus)
	})

	r.Get("/shipping/methods", handler.ListShippingMethods)
	r.Route("/shipments", func(r chi.Router) {
		r.Post("/", handler.CreateShipment)
		r.Get("/{trackingNumber}", handler.GetShipmentByTracking)
		r.Post("/{trackingNumber}/events", handler.IngestShipmentEvent)
		r.Get("/{trackingNumber}/events", handler.ListShipmentEvents)
	})

	r.Post("/webhooks/azampay", handler.AzamPayWebhook)

	return r
}
