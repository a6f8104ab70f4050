// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/mailer"
	"github.com/hyggeo/campaign-service/internal/metrics"
	"github.com/hyggeo/campaign-service/internal/model"
	"github.com/hyggeo/campaign-service/internal/queue"
	"github.com/hyggeo/campaign-service/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type CampaignService struct {
	Campaigns  repository.CampaignRepositoryInterface
	Templates  repository.TemplateRepositoryInterface
	Logs       repository.DeliveryLogRepositoryInterface
	Users      repository.UserDirectory
	Resolver   *RecipientResolver
	Dispatcher *Dispatcher
	Queue      queue.Queue
	Metrics    *metrics.Metrics
	BaseURL    string
	Log        zerolog.Logger
	Now        func() time.Time
}

// CampaignInput is the writable part of a campaign.
type CampaignInput struct {
	Name       string         `json:"name" validate:"required,max=200"`
	TemplateID int64          `json:"template_id" validate:"required,gt=0"`
	Audience   model.Audience `json:"audience"`
	Mode       string         `json:"mode" validate:"omitempty,oneof=test live"`
	CreatedBy  *int64         `json:"created_by"`
}

func (in *CampaignInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Mode == "" {
		in.Mode = string(model.ModeTest)
	}
	if err := validateStruct(in); err != nil {
		return err
	}

	in.Audience = in.Audience.Normalize()
	if err := in.Audience.Validate(); err != nil {
		return appErrors.NewValidation("audience", err.Error())
	}
	if in.Audience.Kind == model.AudienceSegment && !model.KnownSegment(in.Audience.Segment) {
		return appErrors.NewValidation("segment", "is not a known segment: "+in.Audience.Segment)
	}
	return nil
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// DryRunReport describes what a send would do.
type DryRunReport struct {
	CampaignID int64                `json:"campaign_id"`
	Name       string               `json:"name"`
	Template   string               `json:"template"`
	Audience   string               `json:"audience"`
	Mode       string               `json:"mode"`
	Status     model.CampaignStatus `json:"status"`
	Recipients int                  `json:"recipients"`
	Sample     []model.User         `json:"sample,omitempty"`
}

const dryRunSampleSize = 5

func (s *CampaignService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CampaignInput) (*model.Campaign, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		Name:       in.Name,
		TemplateID: in.TemplateID,
		Audience:   in.Audience,
		Mode:       model.CampaignMode(in.Mode),
		Status:     model.CampaignDraft,
		CreatedBy:  in.CreatedBy,
	}
	if err := s.Campaigns.CreateCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	s.Log.Info().Int64("campaign_id", c.ID).Str("audience", c.Audience.String()).Msg("campaign created")
	return c, nil
}

// UpdateCampaign edits a draft campaign.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id int64, in CampaignInput) (*model.Campaign, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		ID:         id,
		Name:       in.Name,
		TemplateID: in.TemplateID,
		Audience:   in.Audience,
		Mode:       model.CampaignMode(in.Mode),
	}
	if err := s.Campaigns.UpdateCampaign(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update campaign %d: %w", id, err)
	}
	return s.Campaigns.GetCampaign(ctx, id)
}

func (s *CampaignService) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	return s.Campaigns.GetCampaign(ctx, id)
}

// ListCampaigns fetches campaigns with pagination, newest first.
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]model.Campaign, Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	if status != "" && !knownStatus(status) {
		return nil, Pagination{}, appErrors.NewValidation("status", "is not a known campaign status: "+status)
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.Campaigns.ListCampaigns(ctx, offset, pageSize, status)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to list campaigns: %w", err)
	}

	return campaigns, Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

func (s *CampaignService) DeleteCampaign(ctx context.Context, id int64) error {
	if err := s.Campaigns.DeleteCampaign(ctx, id); err != nil {
		return err
	}
	s.Log.Info().Int64("campaign_id", id).Msg("campaign deleted")
	return nil
}

// ScheduleCampaign sets a future send time on a draft or scheduled campaign.
func (s *CampaignService) ScheduleCampaign(ctx context.Context, id int64, at time.Time) (*model.Campaign, error) {
	if at.IsZero() {
		return nil, appErrors.NewValidation("scheduled_send", "is required")
	}
	if !at.After(s.now()) {
		return nil, appErrors.NewValidation("scheduled_send", "must be in the future")
	}
	if err := s.Campaigns.Schedule(ctx, id, at.UTC()); err != nil {
		return nil, err
	}
	s.Log.Info().Int64("campaign_id", id).Time("scheduled_send", at).Msg("campaign scheduled")
	return s.Campaigns.GetCampaign(ctx, id)
}

func (s *CampaignService) UnscheduleCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	if err := s.Campaigns.Unschedule(ctx, id); err != nil {
		return nil, err
	}
	return s.Campaigns.GetCampaign(ctx, id)
}

// loadSendable returns the campaign and its template when a send may start.
func (s *CampaignService) loadSendable(ctx context.Context, id int64) (*model.Campaign, *model.Template, error) {
	c, err := s.Campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !c.Status.Sendable() {
		return nil, nil, &appErrors.InvalidTransitionError{CampaignID: id, From: string(c.Status), To: string(model.CampaignSending)}
	}

	t, err := s.Templates.GetTemplate(ctx, c.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	if !t.IsActive {
		return nil, nil, &appErrors.TemplateInactiveError{TemplateID: t.ID}
	}
	return c, t, nil
}

// SendCampaign resolves the audience, claims the campaign, delivers to every
// recipient and records the outcome. Per-recipient failures end up on the
// delivery log; the returned error covers only campaign-level problems.
func (s *CampaignService) SendCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	start := time.Now()
	c, err := s.sendCampaign(ctx, id)
	if s.Metrics != nil {
		result := "sent"
		if err != nil {
			result = "failed"
			if !isEmptyAudience(err) {
				result = "rejected"
			}
		}
		s.Metrics.Sends.WithLabelValues(result).Inc()
		if err == nil {
			s.Metrics.SendDuration.Observe(time.Since(start).Seconds())
		}
	}
	return c, err
}

func (s *CampaignService) sendCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	log := s.Log.With().Int64("campaign_id", id).Logger()

	c, t, err := s.loadSendable(ctx, id)
	if err != nil {
		return nil, err
	}

	users, err := s.Resolver.ResolveAt(ctx, c.Audience, s.now())
	if err != nil {
		if isEmptyAudience(err) {
			if markErr := s.Campaigns.MarkFailed(ctx, id); markErr != nil {
				return nil, fmt.Errorf("failed to mark campaign %d failed: %w", id, markErr)
			}
			log.Warn().Str("audience", c.Audience.String()).Str("status", string(model.CampaignFailed)).Msg("audience is empty")
		}
		return nil, err
	}

	ids := make([]int64, len(users))
	byID := make(map[int64]model.User, len(users))
	for i, u := range users {
		ids[i] = u.ID
		byID[u.ID] = u
	}

	logs, err := s.Campaigns.BeginSending(ctx, id, ids)
	if err != nil {
		return nil, err
	}
	log.Info().Int("recipients", len(logs)).Str("mode", string(c.Mode)).Msg("campaign sending")

	jobs := make([]DeliveryJob, 0, len(logs))
	for _, l := range logs {
		jobs = append(jobs, DeliveryJob{Log: l, User: byID[l.UserID]})
	}
	return s.finishSending(ctx, c, t, jobs, log)
}

// finishSending dispatches the jobs of a campaign in sending and moves it to
// sent. A dispatch aborted by the store leaves it in sending for
// ResumeSending to pick up.
func (s *CampaignService) finishSending(ctx context.Context, c *model.Campaign, t *model.Template, jobs []DeliveryJob, log zerolog.Logger) (*model.Campaign, error) {
	render := func(u model.User) mailer.Message {
		return RenderMessage(t, u, c.Mode, s.BaseURL)
	}
	result, err := s.Dispatcher.Dispatch(ctx, jobs, render)
	if err != nil {
		if refreshErr := s.Campaigns.RefreshCounters(context.WithoutCancel(ctx), c.ID); refreshErr != nil {
			log.Error().Err(refreshErr).Msg("failed to refresh counters")
		}
		return nil, fmt.Errorf("dispatch for campaign %d aborted: %w", c.ID, err)
	}

	done, err := s.Campaigns.CompleteSending(context.WithoutCancel(ctx), c.ID, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to complete campaign %d: %w", c.ID, err)
	}

	log.Info().
		Str("status", string(done.Status)).
		Int("sent", done.SentCount).
		Int("failed", done.FailedCount).
		Int("dispatched_sent", result.Sent).
		Int("dispatched_failed", result.Failed).
		Msg("campaign sent")
	return done, nil
}

// ResumeSending finishes a campaign left in sending by a crash or an aborted
// dispatch. It claims the campaign when it has not been touched since
// staleBefore, delivers the rows still pending and completes it. Rows that
// were already finalized are never sent again.
func (s *CampaignService) ResumeSending(ctx context.Context, id int64, staleBefore time.Time) (*model.Campaign, error) {
	log := s.Log.With().Int64("campaign_id", id).Logger()

	c, err := s.Campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignSending {
		return nil, &appErrors.InvalidTransitionError{CampaignID: id, From: string(c.Status), To: string(model.CampaignSent)}
	}
	t, err := s.Templates.GetTemplate(ctx, c.TemplateID)
	if err != nil {
		return nil, err
	}
	if err := s.Campaigns.ClaimSending(ctx, id, staleBefore); err != nil {
		return nil, err
	}

	pending, err := s.Logs.ListDeliveryLogs(ctx, id, model.DeliveryPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending deliveries for campaign %d: %w", id, err)
	}
	ids := make([]int64, len(pending))
	for i, l := range pending {
		ids[i] = l.UserID
	}
	users, err := s.Users.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipients for campaign %d: %w", id, err)
	}
	byID := make(map[int64]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	jobs := make([]DeliveryJob, 0, len(pending))
	for _, l := range pending {
		u, ok := byID[l.UserID]
		if !ok {
			err := s.Logs.MarkDeliveryFailed(ctx, l.ID, "", "recipient no longer exists")
			if err != nil && !errors.Is(err, appErrors.ErrDeliveryFinalized) {
				return nil, fmt.Errorf("failed to close delivery %d: %w", l.ID, err)
			}
			continue
		}
		jobs = append(jobs, DeliveryJob{Log: l, User: u})
	}

	log.Info().Int("pending", len(jobs)).Msg("resuming campaign")
	return s.finishSending(ctx, c, t, jobs, log)
}

// ResumeStale resumes every campaign stuck in sending since before.
func (s *CampaignService) ResumeStale(ctx context.Context, before time.Time) ([]model.Campaign, error) {
	stale, err := s.Campaigns.ListStaleSending(ctx, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale campaigns: %w", err)
	}

	var (
		done []model.Campaign
		errs []error
	)
	for _, c := range stale {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		resumed, err := s.ResumeSending(ctx, c.ID, before)
		if err != nil {
			s.Log.Warn().Err(err).Int64("campaign_id", c.ID).Msg("stale campaign not resumed")
			errs = append(errs, fmt.Errorf("campaign %d: %w", c.ID, err))
			continue
		}
		done = append(done, *resumed)
	}
	return done, errors.Join(errs...)
}

// EnqueueSend publishes a send job after checking the campaign can be sent.
func (s *CampaignService) EnqueueSend(ctx context.Context, id int64) error {
	if _, _, err := s.loadSendable(ctx, id); err != nil {
		return err
	}
	if s.Queue == nil {
		return errors.New("no send queue configured")
	}
	if err := s.Queue.Publish(ctx, queue.CampaignSendsTopic, queue.SendJob{CampaignID: id}); err != nil {
		return fmt.Errorf("failed to enqueue campaign %d: %w", id, err)
	}
	s.Log.Info().Int64("campaign_id", id).Msg("campaign send enqueued")
	return nil
}

// DryRun resolves the audience without writing anything.
func (s *CampaignService) DryRun(ctx context.Context, id int64) (*DryRunReport, error) {
	c, err := s.Campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.Templates.GetTemplate(ctx, c.TemplateID)
	if err != nil {
		return nil, err
	}

	report := &DryRunReport{
		CampaignID: c.ID,
		Name:       c.Name,
		Template:   t.Name,
		Audience:   c.Audience.String(),
		Mode:       string(c.Mode),
		Status:     c.Status,
	}

	users, err := s.Resolver.ResolveAt(ctx, c.Audience, s.now())
	if isEmptyAudience(err) {
		return report, nil
	}
	if err != nil {
		return nil, err
	}

	report.Recipients = len(users)
	if len(users) > dryRunSampleSize {
		users = users[:dryRunSampleSize]
	}
	report.Sample = users
	return report, nil
}

// PreviewCampaign renders the campaign for one user without sending.
func (s *CampaignService) PreviewCampaign(ctx context.Context, campaignID, userID int64) (*mailer.Message, error) {
	c, err := s.Campaigns.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	t, err := s.Templates.GetTemplate(ctx, c.TemplateID)
	if err != nil {
		return nil, err
	}
	u, err := s.Users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	msg := RenderMessage(t, *u, c.Mode, s.BaseURL)
	return &msg, nil
}

// CampaignStats returns the campaign with live delivery counts.
func (s *CampaignService) CampaignStats(ctx context.Context, id int64) (*model.CampaignStats, error) {
	c, err := s.Campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.Logs.CountByStatus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries for campaign %d: %w", id, err)
	}
	return &model.CampaignStats{Campaign: *c, Stats: stats}, nil
}

func (s *CampaignService) ListDeliveryLogs(ctx context.Context, campaignID int64, status string) ([]model.DeliveryLog, error) {
	switch model.DeliveryStatus(status) {
	case "", model.DeliveryPending, model.DeliverySent, model.DeliveryFailed:
	default:
		return nil, appErrors.NewValidation("status", "is not a known delivery status: "+status)
	}
	if _, err := s.Campaigns.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.Logs.ListDeliveryLogs(ctx, campaignID, model.DeliveryStatus(status))
}

// ResendFailed creates a draft campaign targeting the recipients whose
// delivery failed. The original campaign and its logs are left as they are.
func (s *CampaignService) ResendFailed(ctx context.Context, id int64) (*model.Campaign, error) {
	c, err := s.Campaigns.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignSent {
		return nil, &appErrors.InvalidTransitionError{CampaignID: id, From: string(c.Status), To: "resend"}
	}

	failed, err := s.Logs.ListDeliveryLogs(ctx, id, model.DeliveryFailed)
	if err != nil {
		return nil, err
	}
	if len(failed) == 0 {
		return nil, &appErrors.NoFailuresError{CampaignID: id}
	}

	ids := make([]int64, len(failed))
	for i, l := range failed {
		ids[i] = l.UserID
	}

	resend := &model.Campaign{
		Name:       c.Name + " (resend)",
		TemplateID: c.TemplateID,
		Audience:   model.CustomList(ids...),
		Mode:       c.Mode,
		Status:     model.CampaignDraft,
		CreatedBy:  c.CreatedBy,
	}
	if err := s.Campaigns.CreateCampaign(ctx, resend); err != nil {
		return nil, fmt.Errorf("failed to create resend campaign: %w", err)
	}

	s.Log.Info().
		Int64("campaign_id", id).
		Int64("resend_campaign_id", resend.ID).
		Int("recipients", len(ids)).
		Msg("resend campaign created")
	return resend, nil
}

// RunDue sends every scheduled campaign whose time has come, plus drafts when
// force is set. It keeps going past individual failures and returns the
// campaigns that finished along with the joined errors.
func (s *CampaignService) RunDue(ctx context.Context, now time.Time, force bool) ([]model.Campaign, error) {
	due, err := s.Campaigns.ListDue(ctx, now, force)
	if err != nil {
		return nil, fmt.Errorf("failed to list due campaigns: %w", err)
	}

	var (
		sent []model.Campaign
		errs []error
	)
	for _, c := range due {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		done, err := s.SendCampaign(ctx, c.ID)
		if err != nil {
			s.Log.Warn().Err(err).Int64("campaign_id", c.ID).Msg("due campaign not sent")
			errs = append(errs, fmt.Errorf("campaign %d: %w", c.ID, err))
			continue
		}
		sent = append(sent, *done)
	}
	return sent, errors.Join(errs...)
}

func isEmptyAudience(err error) bool {
	var empty *appErrors.EmptyAudienceError
	return errors.As(err, &empty)
}

func knownStatus(status string) bool {
	switch model.CampaignStatus(status) {
	case model.CampaignDraft, model.CampaignScheduled, model.CampaignSending, model.CampaignSent, model.CampaignFailed:
		return true
	}
	return false
}
