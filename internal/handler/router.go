package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/invoicly/invoicly/internal/middleware"
)

func pathID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса инвойсов.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.RequestMagicLink)
		r.Get("/auth/verify", h.VerifyMagicLink)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/user/me", h.Me)
			r.Post("/user/onboarding", h.FinishOnboarding)

			r.Post("/invoices", h.CreateInvoice)
			r.Get("/invoices", h.GetInvoices)
			r.Delete("/invoices/{id}", h.DeleteInvoice)
			r.Post("/invoices/{id}/pay", h.MarkAsPaid)
			r.Post("/invoices/{id}/remind", h.SendReminder)

			r.Get("/dashboard", h.GetDashboard)
			r.Get("/revenue", h.GetRevenueSeries)

			// Документ доступен только владельцу инвойса.
			r.Get("/invoice/{id}", h.GetInvoiceDocument)
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
