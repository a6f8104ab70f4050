package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/model"
	"github.com/hyggeo/campaign-service/internal/repository/memory"
)

func seed(t *testing.T) (*memory.Store, model.Campaign, model.User, model.User) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()
	alice := s.AddUser(model.User{Username: "alice", Email: "alice@example.com", IsActive: true, EmailConsent: true})
	bob := s.AddUser(model.User{Username: "bob", Email: "bob@example.com", IsActive: true, EmailConsent: true})

	tpl := model.Template{Name: "Welcome", Subject: "Hi", HTMLContent: "<p>Hi</p>", Category: model.CategoryWelcome, IsActive: true}
	require.NoError(t, s.CreateTemplate(ctx, &tpl))

	c := model.Campaign{Name: "Launch", TemplateID: tpl.ID, Audience: model.CustomList(alice.ID, bob.ID), Mode: model.ModeTest}
	require.NoError(t, s.CreateCampaign(ctx, &c))
	return s, c, alice, bob
}

func TestBeginSendingDuplicateLeavesCampaignUntouched(t *testing.T) {
	ctx := context.Background()
	s, c, alice, bob := seed(t)

	_, err := s.InsertDeliveryLog(ctx, c.ID, bob.ID)
	require.NoError(t, err)

	_, err = s.BeginSending(ctx, c.ID, []int64{alice.ID, bob.ID})
	var dup *appErrors.DuplicateDeliveryError
	require.ErrorAs(t, err, &dup)

	got, err := s.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignDraft, got.Status)

	logs, err := s.ListDeliveryLogs(ctx, c.ID, "")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	s, c, alice, bob := seed(t)

	_, err := s.BeginSending(ctx, c.ID, []int64{alice.ID, bob.ID})
	require.NoError(t, err)

	s.DeleteUser(bob.ID)

	logs, err := s.ListDeliveryLogs(ctx, c.ID, "")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, alice.ID, logs[0].UserID)

	got, err := s.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.ID}, got.Audience.UserIDs)
}

func TestFinalizeOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s, c, alice, _ := seed(t)

	log, err := s.InsertDeliveryLog(ctx, c.ID, alice.ID)
	require.NoError(t, err)

	require.NoError(t, s.MarkDelivered(ctx, log.ID, "Hi", time.Now()))
	assert.ErrorIs(t, s.MarkDeliveryFailed(ctx, log.ID, "Hi", "boom"), appErrors.ErrDeliveryFinalized)

	stats, err := s.CountByStatus(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats["sent"])
	assert.Equal(t, 0, stats["failed"])
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	s, c, _, _ := seed(t)

	assert.ErrorIs(t, s.Schedule(ctx, 999, time.Now()), appErrors.ErrNotFound)

	var transition *appErrors.InvalidTransitionError
	require.ErrorAs(t, s.Unschedule(ctx, c.ID), &transition)
	assert.Equal(t, "draft", transition.From)

	require.NoError(t, s.Schedule(ctx, c.ID, time.Now().Add(time.Hour)))
	require.NoError(t, s.MarkFailed(ctx, c.ID))
	require.ErrorAs(t, s.Schedule(ctx, c.ID, time.Now()), &transition)
	assert.Equal(t, "failed", transition.From)
}

func TestCampaignReferencesMustExist(t *testing.T) {
	ctx := context.Background()
	s, c, alice, _ := seed(t)
	missing := int64(999)

	cases := map[string]model.Campaign{
		"template":  {Name: "x", TemplateID: missing, Audience: model.AllUsers()},
		"creator":   {Name: "x", TemplateID: c.TemplateID, Audience: model.AllUsers(), CreatedBy: &missing},
		"recipient": {Name: "x", TemplateID: c.TemplateID, Audience: model.CustomList(alice.ID, missing)},
	}
	for name, bad := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.CreateCampaign(ctx, &bad), appErrors.ErrNotFound)

			update := c
			update.TemplateID = bad.TemplateID
			update.CreatedBy = bad.CreatedBy
			update.Audience = bad.Audience
			if name != "creator" {
				assert.ErrorIs(t, s.UpdateCampaign(ctx, &update), appErrors.ErrNotFound)
			}
		})
	}

	got, err := s.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.TemplateID, got.TemplateID)
	assert.Equal(t, c.Audience, got.Audience)
}

func TestClaimSendingOnlyWhenStale(t *testing.T) {
	ctx := context.Background()
	s, c, alice, bob := seed(t)
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	_, err := s.BeginSending(ctx, c.ID, []int64{alice.ID, bob.ID})
	require.NoError(t, err)

	stale, err := s.ListStaleSending(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, stale)
	var transition *appErrors.InvalidTransitionError
	require.ErrorAs(t, s.ClaimSending(ctx, c.ID, now.Add(-time.Minute)), &transition)

	now = now.Add(time.Hour)
	stale, err = s.ListStaleSending(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.NoError(t, s.ClaimSending(ctx, c.ID, now.Add(-time.Minute)))

	// The claim touched the campaign, so a second resumer loses.
	require.ErrorAs(t, s.ClaimSending(ctx, c.ID, now.Add(-time.Minute)), &transition)
	assert.ErrorIs(t, s.ClaimSending(ctx, 999, now), appErrors.ErrNotFound)
}
