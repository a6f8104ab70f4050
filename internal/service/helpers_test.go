package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/hyggeo/campaign-service/internal/mailer"
	"github.com/hyggeo/campaign-service/internal/metrics"
	"github.com/hyggeo/campaign-service/internal/model"
	"github.com/hyggeo/campaign-service/internal/repository/memory"
	"github.com/hyggeo/campaign-service/internal/service"
)

var errMailboxUnavailable = errors.New("550 mailbox unavailable")

// fakeMailer records messages and fails for the configured addresses.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []mailer.Message
	failFor map[string]bool
}

func (m *fakeMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failFor[msg.To] {
		return errMailboxUnavailable
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message{}, m.sent...)
}

type fixture struct {
	store     *memory.Store
	mailer    *fakeMailer
	metrics   *metrics.Metrics
	templates *service.TemplateService
	campaigns *service.CampaignService
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	fm := &fakeMailer{failFor: map[string]bool{}}
	mt := metrics.New(prometheus.NewRegistry())
	log := zerolog.Nop()

	resolver := service.NewRecipientResolver(store)
	resolver.Now = func() time.Time { return now }

	dispatcher := service.NewDispatcher(fm, store, 3, 0, mt, log)
	dispatcher.Now = func() time.Time { return now }

	return &fixture{
		store:     store,
		mailer:    fm,
		metrics:   mt,
		templates: service.NewTemplateService(store, log),
		campaigns: &service.CampaignService{
			Campaigns:  store,
			Templates:  store,
			Logs:       store,
			Users:      store,
			Resolver:   resolver,
			Dispatcher: dispatcher,
			Metrics:    mt,
			BaseURL:    "https://hyggeo.com",
			Log:        log,
			Now:        func() time.Time { return now },
		},
		now: now,
	}
}

func (f *fixture) addUser(t *testing.T, username string, mutate ...func(*model.User)) model.User {
	t.Helper()
	u := model.User{
		Username:     username,
		Email:        username + "@example.com",
		FirstName:    username,
		IsActive:     true,
		EmailConsent: true,
		DateJoined:   f.now.AddDate(-1, 0, 0),
	}
	for _, m := range mutate {
		m(&u)
	}
	return f.store.AddUser(u)
}

func (f *fixture) template(t *testing.T, active bool) *model.Template {
	t.Helper()
	tmpl, err := f.templates.CreateTemplate(context.Background(), service.TemplateInput{
		Name:        "Welcome",
		Subject:     "Hello {{first_name}}",
		HTMLContent: "<p>Hi {{first_name}}</p>",
		TextContent: "Hi {{first_name}}",
		Category:    "welcome",
		IsActive:    &active,
	})
	require.NoError(t, err)
	return tmpl
}

func (f *fixture) campaign(t *testing.T, templateID int64, audience model.Audience, mode model.CampaignMode) *model.Campaign {
	t.Helper()
	c, err := f.campaigns.CreateCampaign(context.Background(), service.CampaignInput{
		Name:       "Spring launch",
		TemplateID: templateID,
		Audience:   audience,
		Mode:       string(mode),
	})
	require.NoError(t, err)
	return c
}
