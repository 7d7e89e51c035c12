package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/quickorder/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса оформления заказов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/services", h.ListServices)
		r.Get("/customers/{id}", h.GetCustomer)

		r.Post("/orders", h.CreateOrder)
		r.Get("/orders/{id}", h.GetOrder)
		r.Put("/orders/{id}", h.UpdateOrder)

		r.Post("/wizard", h.StartWizard)

		r.Group(func(r chi.Router) {
			r.Use(h.sessions.Middleware)

			r.Get("/wizard", h.GetWizard)
			r.Delete("/wizard", h.CloseWizard)

			r.Post("/wizard/customer/confirm", h.ConfirmCustomer)
			r.Post("/wizard/customer/change", h.ChangeCustomer)

			r.Get("/wizard/services", h.ListWizardServices)
			r.Post("/wizard/services/{serviceID}/toggle", h.ToggleService)
			r.Put("/wizard/details/{serviceID}", h.SetDetails)
			r.Put("/wizard/meta", h.SetMeta)

			r.Post("/wizard/next", h.Next)
			r.Post("/wizard/back", h.Back)
			r.Post("/wizard/reset", h.Reset)

			r.Post("/wizard/order", h.CreateWizardOrder)
			r.Post("/wizard/payment", h.ConfirmPayment)
			r.Post("/wizard/payment/intent", h.HandlePaymentIntent)

			r.Get("/wizard/notifications", h.Notifications)
			r.Get("/wizard/orders", h.CompletedOrders)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
