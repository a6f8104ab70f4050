// internal/repository/interfaces.go
package repository

import (
	"context"
	"time"

	"github.com/hyggeo/campaign-service/internal/model"
)

type TemplateRepositoryInterface interface {
	CreateTemplate(ctx context.Context, t *model.Template) error
	UpdateTemplate(ctx context.Context, t *model.Template) error
	GetTemplate(ctx context.Context, id int64) (*model.Template, error)
	GetTemplateByName(ctx context.Context, name string) (*model.Template, error)
	ListTemplates(ctx context.Context, category model.TemplateCategory, activeOnly bool) ([]model.Template, error)
	// DeleteTemplate cascades to campaigns and their delivery logs.
	DeleteTemplate(ctx context.Context, id int64) error
}

type CampaignRepositoryInterface interface {
	CreateCampaign(ctx context.Context, c *model.Campaign) error
	// UpdateCampaign only applies to drafts.
	UpdateCampaign(ctx context.Context, c *model.Campaign) error
	GetCampaign(ctx context.Context, id int64) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]model.Campaign, int, error)
	DeleteCampaign(ctx context.Context, id int64) error

	Schedule(ctx context.Context, id int64, at time.Time) error
	Unschedule(ctx context.Context, id int64) error
	// MarkFailed moves a draft or scheduled campaign to failed with zero
	// recipients.
	MarkFailed(ctx context.Context, id int64) error
	// BeginSending atomically claims the campaign (draft/scheduled to
	// sending), fixes total_recipients and inserts one pending log per user.
	BeginSending(ctx context.Context, id int64, userIDs []int64) ([]model.DeliveryLog, error)
	// RefreshCounters recomputes sent/failed counts from the delivery logs.
	RefreshCounters(ctx context.Context, id int64) error
	// CompleteSending recomputes counters and moves sending to sent.
	CompleteSending(ctx context.Context, id int64, sentAt time.Time) (*model.Campaign, error)
	// ListDue returns scheduled campaigns whose send time has passed, plus
	// drafts when includeDrafts is set.
	ListDue(ctx context.Context, now time.Time, includeDrafts bool) ([]model.Campaign, error)
	// ListStaleSending returns campaigns left in sending with no update since
	// before.
	ListStaleSending(ctx context.Context, before time.Time) ([]model.Campaign, error)
	// ClaimSending takes over a sending campaign untouched since before by
	// bumping updated_at. Only one caller wins.
	ClaimSending(ctx context.Context, id int64, before time.Time) error
}

type DeliveryLogRepositoryInterface interface {
	// InsertDeliveryLog is insert-or-fail on (campaign, user).
	InsertDeliveryLog(ctx context.Context, campaignID, userID int64) (*model.DeliveryLog, error)
	MarkDelivered(ctx context.Context, id int64, subject string, sentAt time.Time) error
	MarkDeliveryFailed(ctx context.Context, id int64, subject, errMsg string) error
	ListDeliveryLogs(ctx context.Context, campaignID int64, status model.DeliveryStatus) ([]model.DeliveryLog, error)
	CountByStatus(ctx context.Context, campaignID int64) (map[string]int, error)
}

// UserDirectory is the read side of the host application's user store.
type UserDirectory interface {
	AllUsers(ctx context.Context) ([]model.User, error)
	Segment(ctx context.Context, name string, now time.Time) ([]model.User, error)
	// UsersByIDs keeps the order of ids and drops unknown ones.
	UsersByIDs(ctx context.Context, ids []int64) ([]model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByUnsubscribeToken(ctx context.Context, token string) (*model.User, error)
	SetEmailConsent(ctx context.Context, id int64, consent bool) error
	// EnsureUnsubscribeTokens gives every user without a token a new one and
	// reports how many were issued.
	EnsureUnsubscribeTokens(ctx context.Context) (int, error)
}
