package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agreedhq/backoffice/internal/auth"
)

// SetupRoutes wires the full route table.
func SetupRoutes(h *Handlers, authManager *auth.Manager) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.agreed.example", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if authManager != nil {
		r.Get("/auth/login", authManager.HandleLogin)
		r.Get("/auth/callback", authManager.HandleCallback)
		r.Get("/auth/logout", authManager.HandleLogout)
		r.Get("/auth/user", authManager.HandleUserInfo)
	}

	r.Route("/api", func(r chi.Router) {
		// Stripe calls the webhook unauthenticated; it carries its own
		// signature. Everything else needs a session.
		r.Post("/payments/webhook", h.PaymentsWebhook)

		r.Group(func(r chi.Router) {
			if authManager != nil {
				r.Use(func(next http.Handler) http.Handler {
					return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
						if !authManager.IsAuthenticated(req) {
							writeError(w, http.StatusUnauthorized, "unauthorized")
							return
						}
						next.ServeHTTP(w, req)
					})
				})
			}

			r.Post("/intake/upload", h.IntakeUpload)

			r.Post("/clients/save", h.SaveClient)
			r.Get("/clients", h.ListClients)
			r.Get("/clients/{id}", h.GetClient)
			r.Post("/clients/by-token", h.GetClientByToken)

			r.Post("/esign/envelopes", h.CreateEnvelope)
			r.Post("/esign/envelopes/{id}/view", h.EnvelopeView)
			r.Post("/esign/templates", h.CreateTemplate)
			r.Get("/esign/templates", h.ListTemplates)

			r.Post("/video/generate", h.GenerateVideo)
			r.Get("/video/status", h.VideoStatus)

			r.Post("/voice/make-call", h.MakeCall)
			r.Post("/voice/call-content", h.RunCallContent)
			r.Get("/voice/call-content/{clientId}", h.GetCallContent)

			r.Post("/chat/ask", h.ChatAsk)

			r.Post("/payments/intent", h.PaymentIntent)

			r.Post("/calendar/schedule", h.CalendarSchedule)

			r.Post("/reminders/run", h.RunReminders)
		})
	})

	return r
}
