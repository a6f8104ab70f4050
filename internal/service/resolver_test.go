package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/model"
	"github.com/hyggeo/campaign-service/internal/repository/memory"
	"github.com/hyggeo/campaign-service/internal/service"
)

func ids(users []model.User) []int64 {
	out := make([]int64, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

func TestResolveAudiences(t *testing.T) {
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	store := memory.New()
	old := now.AddDate(-1, 0, 0)

	staff := store.AddUser(model.User{Username: "staff", Email: "staff@example.com", IsActive: true, IsStaff: true, DateJoined: old})
	fresh := store.AddUser(model.User{Username: "fresh", Email: "fresh@example.com", IsActive: true, EmailConsent: true, DateJoined: now.AddDate(0, 0, -3)})
	store.AddUser(model.User{Username: "gone", Email: "gone@example.com", IsActive: false, EmailConsent: true, DateJoined: old})

	r := service.NewRecipientResolver(store)
	r.Now = func() time.Time { return now }
	ctx := context.Background()

	tests := []struct {
		name     string
		audience model.Audience
		want     []int64
	}{
		{"all active users", model.AllUsers(), []int64{staff.ID, fresh.ID}},
		{"opted in", model.SegmentOf(model.SegmentOptedIn), []int64{fresh.ID}},
		{"staff", model.SegmentOf(model.SegmentStaff), []int64{staff.ID}},
		{"recent", model.SegmentOf(model.SegmentRecent), []int64{fresh.ID}},
		{"custom keeps first-seen order", model.CustomList(fresh.ID, staff.ID, fresh.ID, 999), []int64{fresh.ID, staff.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := r.Resolve(ctx, tt.audience)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(users))
		})
	}
}

func TestResolveSameInstantIsStable(t *testing.T) {
	store := memory.New()
	now := time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)
	for _, name := range []string{"a", "b", "c"} {
		store.AddUser(model.User{Username: name, Email: name + "@example.com", IsActive: true, DateJoined: now})
	}
	r := service.NewRecipientResolver(store)

	first, err := r.ResolveAt(context.Background(), model.SegmentOf(model.SegmentRecent), now)
	require.NoError(t, err)
	second, err := r.ResolveAt(context.Background(), model.SegmentOf(model.SegmentRecent), now)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveErrors(t *testing.T) {
	store := memory.New()
	r := service.NewRecipientResolver(store)
	ctx := context.Background()

	_, err := r.Resolve(ctx, model.AllUsers())
	var empty *appErrors.EmptyAudienceError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, "all", empty.Audience)

	_, err = r.Resolve(ctx, model.SegmentOf("vip"))
	var validation *appErrors.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Fields, "segment")

	_, err = r.Resolve(ctx, model.Audience{Kind: "everyone"})
	require.ErrorAs(t, err, &validation)
	assert.Contains(t, validation.Fields, "audience")

	_, err = r.Resolve(ctx, model.CustomList(42))
	require.ErrorAs(t, err, &empty)
}
