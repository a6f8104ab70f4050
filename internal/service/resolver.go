// internal/service/resolver.go
package service

import (
	"context"
	"time"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/model"
	"github.com/hyggeo/campaign-service/internal/repository"
)

// RecipientResolver turns an audience into an ordered, de-duplicated list of
// users.
type RecipientResolver struct {
	Users repository.UserDirectory
	Now   func() time.Time
}

func NewRecipientResolver(users repository.UserDirectory) *RecipientResolver {
	return &RecipientResolver{Users: users, Now: time.Now}
}

func (r *RecipientResolver) Resolve(ctx context.Context, a model.Audience) ([]model.User, error) {
	return r.ResolveAt(ctx, a, r.Now())
}

// ResolveAt evaluates the audience against the directory as of now.
func (r *RecipientResolver) ResolveAt(ctx context.Context, a model.Audience, now time.Time) ([]model.User, error) {
	if err := a.Validate(); err != nil {
		return nil, appErrors.NewValidation("audience", err.Error())
	}

	var (
		users []model.User
		err   error
	)
	switch a.Kind {
	case model.AudienceAll:
		users, err = r.Users.AllUsers(ctx)
	case model.AudienceSegment:
		if !model.KnownSegment(a.Segment) {
			return nil, appErrors.NewValidation("segment", "is not a known segment: "+a.Segment)
		}
		users, err = r.Users.Segment(ctx, a.Segment, now)
	case model.AudienceCustom:
		users, err = r.Users.UsersByIDs(ctx, dedupeIDs(a.UserIDs))
	}
	if err != nil {
		return nil, err
	}

	users = dedupeUsers(users)
	if len(users) == 0 {
		return nil, &appErrors.EmptyAudienceError{Audience: a.String()}
	}
	return users, nil
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func dedupeUsers(users []model.User) []model.User {
	seen := make(map[int64]bool, len(users))
	out := make([]model.User, 0, len(users))
	for _, u := range users {
		if !seen[u.ID] {
			seen[u.ID] = true
			out = append(out, u)
		}
	}
	return out
}
