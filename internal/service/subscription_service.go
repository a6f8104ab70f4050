// internal/service/subscription_service.go
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/model"
	"github.com/hyggeo/campaign-service/internal/repository"
)

type SubscriptionService struct {
	Users repository.UserDirectory
	Log   zerolog.Logger
}

// Unsubscribe withdraws email consent for the user owning token.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, token string) (*model.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, appErrors.NewValidation("token", "is required")
	}

	u, err := s.Users.GetUserByUnsubscribeToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.Users.SetEmailConsent(ctx, u.ID, false); err != nil {
		return nil, fmt.Errorf("failed to unsubscribe user %d: %w", u.ID, err)
	}
	u.EmailConsent = false

	s.Log.Info().Int64("user_id", u.ID).Msg("user unsubscribed")
	return u, nil
}

// EnsureUnsubscribeTokens issues tokens to users that have none so every
// rendered unsubscribe_url resolves.
func (s *SubscriptionService) EnsureUnsubscribeTokens(ctx context.Context) (int, error) {
	issued, err := s.Users.EnsureUnsubscribeTokens(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to issue unsubscribe tokens: %w", err)
	}
	if issued > 0 {
		s.Log.Info().Int("issued", issued).Msg("unsubscribe tokens issued")
	}
	return issued, nil
}
