package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/pewcal/pewcal/internal/api"
	"github.com/pewcal/pewcal/internal/auth"
	"github.com/pewcal/pewcal/internal/config"
	"github.com/pewcal/pewcal/internal/http/csrf"
	"github.com/pewcal/pewcal/internal/http/ratelimit"
	"github.com/pewcal/pewcal/internal/logger"
	"github.com/pewcal/pewcal/internal/metrics"
	"github.com/pewcal/pewcal/internal/store"
)

// NewRouter wires the health, metrics, auth and API routes. The rate limiter
// sweepers stop when ctx is cancelled.
func NewRouter(ctx context.Context, cfg *config.Config, store *store.Store, authService *auth.Service, h *api.Handler, log logger.Logger) http.Handler {
	r := chi.NewRouter()

	// Auth endpoints: 5 requests per second, burst of 10
	authRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(5), 10, 5*time.Minute, cfg.TrustedProxies)
	// Chat endpoints hit Google and OpenAI on every message: 2 per second, burst of 5
	chatRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(2), 5, 5*time.Minute, cfg.TrustedProxies)
	go authRateLimiter.Run(ctx)
	go chatRateLimiter.Run(ctx)

	r.Use(middleware.RequestID)
	r.Use(accessLog(log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(csrf.Middleware(cfg))

		r.Route("/auth", func(r chi.Router) {
			r.Use(authRateLimiter.Middleware())
			r.Get("/login", authService.Login)
			r.Get("/google", authService.Login)
			r.Get("/callback", authService.Callback)
			r.Get("/me", authService.Me)
			r.Get("/signout", authService.Signout)
			r.Post("/refresh", authService.Refresh)
			r.Post("/logout", authService.Logout)
			r.Post("/cleanup", authService.Cleanup)
		})

		r.Group(func(r chi.Router) {
			r.Use(authService.RequireUser)

			r.Post("/calendar/select", h.SelectCalendar)
			r.Post("/calendar/setup", h.SetupCalendar)
			r.Get("/calendar/parse", h.ParseEvent)
			r.Post("/calendar/parse", h.ParseEvent)
			r.Get("/calendar/{id}", h.GetCalendar)
			r.Post("/calendar/{id}/shares", h.ShareCalendar)
			r.Delete("/calendar/{id}/shares/{userId}", h.UnshareCalendar)

			r.Post("/assistant/create", h.CreateAssistant)
			r.Get("/files", h.ListFiles)
			r.Post("/files/upload", h.UploadFile)

			r.Group(func(r chi.Router) {
				r.Use(authService.RequireGoogle)

				r.Get("/calendar/list", h.ListCalendars)
				r.Get("/calendar/events", h.ListEvents)
				r.Post("/calendar/events", h.CreateEvent)
				r.Post("/calendar/events/delete", h.DeleteEvent)
				r.Get("/calendar/{id}/events", h.CalendarEvents)

				r.Group(func(r chi.Router) {
					r.Use(chatRateLimiter.Middleware())
					r.Post("/chat", h.Chat)
					r.Get("/chat/ws", h.ChatSocket)
					r.Post("/calendar/chat", h.AssistantChat)
					r.Post("/calendar/{id}/chat", h.CalendarChat)
				})
			})
		})
	})

	return r
}
