// internal/app/app.go

// Package app assembles the stores, transports and services from config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/hyggeo/campaign-service/internal/config"
	"github.com/hyggeo/campaign-service/internal/controller"
	"github.com/hyggeo/campaign-service/internal/db"
	"github.com/hyggeo/campaign-service/internal/handler"
	"github.com/hyggeo/campaign-service/internal/mailer"
	"github.com/hyggeo/campaign-service/internal/metrics"
	"github.com/hyggeo/campaign-service/internal/queue"
	"github.com/hyggeo/campaign-service/internal/repository"
	"github.com/hyggeo/campaign-service/internal/repository/memory"
	"github.com/hyggeo/campaign-service/internal/service"
)

type stores struct {
	templates repository.TemplateRepositoryInterface
	campaigns repository.CampaignRepositoryInterface
	logs      repository.DeliveryLogRepositoryInterface
	users     repository.UserDirectory
}

type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	DB       *sqlx.DB
	Memory   *memory.Store
	Registry *prometheus.Registry
	Queue    queue.Queue

	Templates     *service.TemplateService
	Campaigns     *service.CampaignService
	Subscriptions *service.SubscriptionService
	Scheduler     *service.Scheduler
}

// New connects the configured store, mailer and queue. withQueue is false for
// one-shot commands that never publish or consume jobs.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, withQueue bool) (*App, error) {
	a := &App{
		Config:   cfg,
		Log:      log,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mt := metrics.New(a.Registry)

	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	m, err := mailer.New(cfg.Mail, log.With().Str("component", "mailer").Logger())
	if err != nil {
		a.Close()
		return nil, err
	}

	if withQueue {
		if a.Queue, err = a.openQueue(); err != nil {
			a.Close()
			return nil, err
		}
	}

	dispatcher := service.NewDispatcher(m, st.logs, cfg.Dispatch.Workers, cfg.Dispatch.RatePerSecond, mt,
		log.With().Str("component", "dispatcher").Logger())

	a.Templates = service.NewTemplateService(st.templates, log.With().Str("component", "templates").Logger())
	a.Campaigns = &service.CampaignService{
		Campaigns:  st.campaigns,
		Templates:  st.templates,
		Logs:       st.logs,
		Users:      st.users,
		Resolver:   service.NewRecipientResolver(st.users),
		Dispatcher: dispatcher,
		Queue:      a.Queue,
		Metrics:    mt,
		BaseURL:    cfg.PublicBaseURL,
		Log:        log.With().Str("component", "campaigns").Logger(),
	}
	a.Subscriptions = &service.SubscriptionService{Users: st.users, Log: log}
	a.Scheduler = &service.Scheduler{
		Campaigns:  a.Campaigns,
		Interval:   cfg.SchedulerInterval,
		StaleAfter: cfg.SendingStaleAfter,
		Log:        log.With().Str("component", "scheduler").Logger(),
	}
	return a, nil
}

func (a *App) openStore(ctx context.Context) (stores, error) {
	switch strings.ToLower(a.Config.Store) {
	case "memory":
		a.Log.Warn().Msg("using in-memory store, data is lost on exit")
		a.Memory = memory.New()
		return stores{a.Memory, a.Memory, a.Memory, a.Memory}, nil
	case "", "postgres":
		conn, err := db.Connect(ctx, a.Config.Database, a.Log)
		if err != nil {
			return stores{}, err
		}
		a.DB = conn
		base := repository.NewBaseRepository(conn)
		return stores{
			templates: repository.NewTemplateRepository(base),
			campaigns: repository.NewCampaignRepository(base),
			logs:      repository.NewDeliveryLogRepository(base),
			users:     repository.NewUserRepository(base),
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown STORE %q", a.Config.Store)
	}
}

func (a *App) openQueue() (queue.Queue, error) {
	switch a.Config.Queue.Kind() {
	case "memory":
		return queue.NewInMemoryQueue(a.Log.With().Str("component", "queue").Logger()), nil
	case "amqp", "rabbitmq":
		return queue.DialAMQP(a.Config.Queue.AMQPURL, a.Log.With().Str("component", "queue").Logger())
	default:
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", a.Config.Queue.Backend)
	}
}

// Migrate applies the schema when running against Postgres.
func (a *App) Migrate(ctx context.Context) error {
	if a.DB == nil {
		return nil
	}
	if err := db.Migrate(ctx, a.DB); err != nil {
		return err
	}
	a.Log.Info().Msg("schema applied")
	return nil
}

// StartConsumer subscribes the campaign send handler to the queue.
func (a *App) StartConsumer(ctx context.Context) error {
	if a.Queue == nil {
		return errors.New("queue is not configured")
	}
	return queue.StartCampaignSendSubscriber(ctx, a.Queue, a.Campaigns, a.Log.With().Str("component", "consumer").Logger())
}

func (a *App) Router() http.Handler {
	public := &handler.PublicHandler{Subscriptions: a.Subscriptions}
	if a.DB != nil {
		public.DB = a.DB
	}

	return controller.NewRouter(controller.RouterDeps{
		Campaigns: &controller.CampaignController{CampaignService: a.Campaigns},
		Templates: &controller.TemplateController{TemplateService: a.Templates},
		Public:    public,
		Gatherer:  a.Registry,
		Log:       a.Log,
	})
}

func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
