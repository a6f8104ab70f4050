package app_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyggeo/campaign-service/internal/app"
	"github.com/hyggeo/campaign-service/internal/config"
	"github.com/hyggeo/campaign-service/internal/model"
	"github.com/hyggeo/campaign-service/internal/service"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Store:             "memory",
		PublicBaseURL:     "https://hyggeo.com",
		SchedulerInterval: time.Minute,
		Mail:              config.MailConfig{Backend: "console", From: "noreply@hyggeo.com", FromName: "HygGeo"},
		Dispatch:          config.DispatchConfig{Workers: 2},
		Queue:             config.QueueConfig{Backend: "memory"},
	}
}

func TestNewWiresMemoryStack(t *testing.T) {
	ctx := context.Background()
	a, err := app.New(ctx, memoryConfig(), zerolog.New(io.Discard), true)
	require.NoError(t, err)
	require.NotNil(t, a.Memory)
	assert.Nil(t, a.DB)
	require.NoError(t, a.Migrate(ctx))
	assert.NotNil(t, a.Router())

	created, err := a.Templates.SeedSampleTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, created)
}

func TestQueuedSendIsConsumed(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Queue.Backend = "Memory"
	require.True(t, cfg.Queue.InProcess())

	a, err := app.New(ctx, cfg, zerolog.New(io.Discard), true)
	require.NoError(t, err)
	require.NoError(t, a.StartConsumer(ctx))

	a.Memory.AddUser(model.User{Username: "astrid", Email: "astrid@example.com", IsActive: true})
	_, err = a.Templates.SeedSampleTemplates(ctx)
	require.NoError(t, err)
	templates, err := a.Templates.ListActive(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, templates)

	c, err := a.Campaigns.CreateCampaign(ctx, service.CampaignInput{
		Name:       "Queued",
		TemplateID: templates[0].ID,
		Audience:   model.AllUsers(),
	})
	require.NoError(t, err)

	require.NoError(t, a.Campaigns.EnqueueSend(ctx, c.ID))
	require.NoError(t, a.Close())

	got, err := a.Campaigns.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignSent, got.Status)
	assert.Equal(t, 1, got.SentCount)
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store = "mongo"
	_, err := app.New(context.Background(), cfg, zerolog.Nop(), false)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.Queue.Backend = "kafka"
	_, err = app.New(context.Background(), cfg, zerolog.Nop(), true)
	assert.Error(t, err)

	cfg = memoryConfig()
	cfg.Mail.Backend = "pigeon"
	_, err = app.New(context.Background(), cfg, zerolog.Nop(), false)
	assert.Error(t, err)
}

func TestStartConsumerNeedsQueue(t *testing.T) {
	a, err := app.New(context.Background(), memoryConfig(), zerolog.Nop(), false)
	require.NoError(t, err)
	assert.Nil(t, a.Queue)
	assert.Error(t, a.StartConsumer(context.Background()))
}
