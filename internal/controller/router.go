// internal/controller/router.go
package controller

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/hyggeo/campaign-service/internal/handler"
)

type RouterDeps struct {
	Campaigns *CampaignController
	Templates *TemplateController
	Public    *handler.PublicHandler
	Gatherer  prometheus.Gatherer
	Log       zerolog.Logger
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(d.Log))
	r.Use(hlog.RequestIDHandler("request_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}))

	// Template routes
	r.Route("/templates", func(r chi.Router) {
		r.Post("/", d.Templates.CreateTemplate)
		r.Get("/", d.Templates.ListTemplates)
		r.Get("/{id}", d.Templates.GetTemplate)
		r.Put("/{id}", d.Templates.UpdateTemplate)
		r.Delete("/{id}", d.Templates.DeleteTemplate)
	})

	// Campaign routes
	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", d.Campaigns.CreateCampaign)
		r.Get("/", d.Campaigns.ListCampaigns)
		r.Get("/{id}", d.Campaigns.GetCampaignDetails)
		r.Put("/{id}", d.Campaigns.UpdateCampaign)
		r.Delete("/{id}", d.Campaigns.DeleteCampaign)
		r.Post("/{id}/schedule", d.Campaigns.ScheduleCampaign)
		r.Post("/{id}/unschedule", d.Campaigns.UnscheduleCampaign)
		r.Post("/{id}/send", d.Campaigns.SendCampaign)
		r.Post("/{id}/preview", d.Campaigns.PreviewCampaign)
		r.Post("/{id}/resend-failed", d.Campaigns.ResendFailed)
		r.Get("/{id}/logs", d.Campaigns.ListDeliveryLogs)
	})

	r.Get("/unsubscribe/{token}", d.Public.Unsubscribe)
	r.Get("/unsubscribe/{token}/", d.Public.Unsubscribe)
	r.Get("/healthz", d.Public.Health)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}
