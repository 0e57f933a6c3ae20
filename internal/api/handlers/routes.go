// routes.go — регистрация маршрутов API на chi-роутере.
package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/megalinks/megalinks/internal/api/middleware"
)

// Mount регистрирует все маршруты API.
// Маршруты ссылок, анализа и /auth/me доступны только с активной сессией.
func (h *APIHandler) Mount(r chi.Router, auth middleware.Authenticator) {
	r.Get("/health/live", h.HealthLive)
	r.Get("/health/ready", h.HealthReady)
	r.Get("/metrics", h.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health/ping", h.Ping)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
			r.Get("/check-pin/{pin}", h.CheckPIN)
			r.With(middleware.RequireSession(auth)).Get("/me", h.Me)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(auth))

			r.Post("/analyze", h.AnalyzeURL)

			r.Route("/links", func(r chi.Router) {
				r.Get("/", h.ListLinks)
				r.Post("/", h.CreateLink)
				r.Post("/refresh-all", h.RefreshAllLinks)
				r.Get("/analysis-status", h.GetAnalysisStatus)
				r.Get("/by-tag/{tag}", h.ListLinksByTag)
				r.Get("/{id}", h.GetLink)
				r.Put("/{id}", h.UpdateLink)
				r.Delete("/{id}", h.DeleteLink)
				r.Post("/{id}/refresh", h.RefreshLink)
			})
		})
	})
}
