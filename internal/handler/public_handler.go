// internal/handler/public_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hyggeo/campaign-service/internal/service"
)

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PublicHandler serves the unauthenticated endpoints linked from emails and
// used by liveness checks.
type PublicHandler struct {
	Subscriptions *service.SubscriptionService
	DB            Pinger
}

// Unsubscribe handles GET /unsubscribe/{token}.
func (h *PublicHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	u, err := h.Subscriptions.Unsubscribe(r.Context(), token)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"unsubscribed": true,
		"email":        u.Email,
		"message":      "You have been unsubscribed from HygGeo emails.",
	})
}

// Health handles GET /healthz.
func (h *PublicHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
