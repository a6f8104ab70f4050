// internal/repository/campaign_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/model"
)

type CampaignRepository struct {
	BaseRepository
}

func NewCampaignRepository(base BaseRepository) *CampaignRepository {
	return &CampaignRepository{BaseRepository: base}
}

type campaignRow struct {
	ID              int64      `db:"id"`
	Name            string     `db:"name"`
	TemplateID      int64      `db:"template_id"`
	AudienceType    string     `db:"audience_type"`
	SegmentName     string     `db:"segment_name"`
	Mode            string     `db:"mode"`
	Status          string     `db:"status"`
	ScheduledSend   *time.Time `db:"scheduled_send"`
	TotalRecipients int        `db:"total_recipients"`
	SentCount       int        `db:"sent_count"`
	FailedCount     int        `db:"failed_count"`
	CreatedBy       *int64     `db:"created_by"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	SentAt          *time.Time `db:"sent_at"`
}

func (r campaignRow) toModel(recipients []int64) model.Campaign {
	return model.Campaign{
		ID:         r.ID,
		Name:       r.Name,
		TemplateID: r.TemplateID,
		Audience: model.Audience{
			Kind:    model.AudienceKind(r.AudienceType),
			Segment: r.SegmentName,
			UserIDs: recipients,
		}.Normalize(),
		Mode:            model.CampaignMode(r.Mode),
		Status:          model.CampaignStatus(r.Status),
		ScheduledSend:   r.ScheduledSend,
		TotalRecipients: r.TotalRecipients,
		SentCount:       r.SentCount,
		FailedCount:     r.FailedCount,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		SentAt:          r.SentAt,
	}
}

const campaignColumns = `id, name, template_id, audience_type, segment_name, mode, status, scheduled_send,
        total_recipients, sent_count, failed_count, created_by, created_at, updated_at, sent_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
            INSERT INTO email_campaigns (name, template_id, audience_type, segment_name, mode, status, scheduled_send, created_by)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
            RETURNING id, created_at, updated_at
        `
		err := tx.QueryRowxContext(ctx, query,
			c.Name, c.TemplateID, string(c.Audience.Kind), c.Audience.Segment,
			string(c.Mode), string(c.Status), c.ScheduledSend, c.CreatedBy,
		).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return campaignReferenceError(err, c)
		}
		return insertRecipients(ctx, tx, c.ID, c.Audience)
	})
}

func (r *CampaignRepository) UpdateCampaign(ctx context.Context, c *model.Campaign) error {
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
            UPDATE email_campaigns
            SET name=$1, template_id=$2, audience_type=$3, segment_name=$4, mode=$5, updated_at=NOW()
            WHERE id=$6 AND status='draft'
            RETURNING updated_at
        `
		err := tx.QueryRowxContext(ctx, query,
			c.Name, c.TemplateID, string(c.Audience.Kind), c.Audience.Segment, string(c.Mode), c.ID,
		).Scan(&c.UpdatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return transitionError(ctx, tx, c.ID, model.CampaignDraft)
		}
		if err != nil {
			return campaignReferenceError(err, c)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM email_campaign_recipients WHERE campaign_id=$1`, c.ID); err != nil {
			return err
		}
		return insertRecipients(ctx, tx, c.ID, c.Audience)
	})
}

func insertRecipients(ctx context.Context, tx *sqlx.Tx, campaignID int64, a model.Audience) error {
	if a.Kind != model.AudienceCustom {
		return nil
	}
	for pos, userID := range a.UserIDs {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO email_campaign_recipients (campaign_id, user_id, position)
            VALUES ($1, $2, $3)
            ON CONFLICT (campaign_id, user_id) DO NOTHING
        `, campaignID, userID, pos)
		if _, ok := foreignKeyConstraint(err); ok {
			return appErrors.NewUserNotFound(userID)
		}
		if err != nil {
			return fmt.Errorf("failed to attach recipient %d: %w", userID, err)
		}
	}
	return nil
}

// campaignReferenceError turns a foreign key violation on email_campaigns
// into the NotFoundError for the missing template or creator.
func campaignReferenceError(err error, c *model.Campaign) error {
	constraint, ok := foreignKeyConstraint(err)
	if !ok {
		return err
	}
	if strings.Contains(constraint, "created_by") && c.CreatedBy != nil {
		return appErrors.NewUserNotFound(*c.CreatedBy)
	}
	return appErrors.NewTemplateNotFound(c.TemplateID)
}

func (r *CampaignRepository) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	var row campaignRow
	err := r.DB.GetContext(ctx, &row, `SELECT `+campaignColumns+` FROM email_campaigns WHERE id=$1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}

	recipients, err := r.recipients(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	c := row.toModel(recipients[id])
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]model.Campaign, int, error) {
	var rows []campaignRow
	query := `SELECT ` + campaignColumns + ` FROM email_campaigns
        WHERE ($1 = '' OR status = $1)
        ORDER BY id DESC LIMIT $2 OFFSET $3`
	if err := r.DB.SelectContext(ctx, &rows, query, status, limit, offset); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM email_campaigns WHERE ($1 = '' OR status = $1)`, status); err != nil {
		return nil, 0, err
	}

	campaigns, err := r.toModels(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

// toModels attaches custom recipients to each row.
func (r *CampaignRepository) toModels(ctx context.Context, rows []campaignRow) ([]model.Campaign, error) {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	recipients, err := r.recipients(ctx, ids)
	if err != nil {
		return nil, err
	}

	campaigns := make([]model.Campaign, 0, len(rows))
	for _, row := range rows {
		campaigns = append(campaigns, row.toModel(recipients[row.ID]))
	}
	return campaigns, nil
}

func (r *CampaignRepository) recipients(ctx context.Context, campaignIDs []int64) (map[int64][]int64, error) {
	out := make(map[int64][]int64, len(campaignIDs))
	if len(campaignIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		CampaignID int64 `db:"campaign_id"`
		UserID     int64 `db:"user_id"`
	}
	err := r.DB.SelectContext(ctx, &rows, `
        SELECT campaign_id, user_id FROM email_campaign_recipients
        WHERE campaign_id = ANY($1)
        ORDER BY campaign_id, position, id
    `, pq.Array(campaignIDs))
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.CampaignID] = append(out[row.CampaignID], row.UserID)
	}
	return out, nil
}

func (r *CampaignRepository) DeleteCampaign(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM email_campaigns WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.NewCampaignNotFound(id)
	}
	return nil
}

// ====================== Lifecycle ======================

func (r *CampaignRepository) Schedule(ctx context.Context, id int64, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE email_campaigns SET status='scheduled', scheduled_send=$1, updated_at=NOW()
        WHERE id=$2 AND status IN ('draft', 'scheduled')
    `, at, id)
	return r.checkTransition(ctx, res, err, id, model.CampaignScheduled)
}

func (r *CampaignRepository) Unschedule(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE email_campaigns SET status='draft', scheduled_send=NULL, updated_at=NOW()
        WHERE id=$1 AND status='scheduled'
    `, id)
	return r.checkTransition(ctx, res, err, id, model.CampaignDraft)
}

func (r *CampaignRepository) MarkFailed(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE email_campaigns
        SET status='failed', total_recipients=0, sent_count=0, failed_count=0, updated_at=NOW()
        WHERE id=$1 AND status IN ('draft', 'scheduled')
    `, id)
	return r.checkTransition(ctx, res, err, id, model.CampaignFailed)
}

func (r *CampaignRepository) BeginSending(ctx context.Context, id int64, userIDs []int64) ([]model.DeliveryLog, error) {
	logs := make([]model.DeliveryLog, 0, len(userIDs))

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
            UPDATE email_campaigns SET status='sending', total_recipients=$1, updated_at=NOW()
            WHERE id=$2 AND status IN ('draft', 'scheduled')
        `, len(userIDs), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return transitionError(ctx, tx, id, model.CampaignSending)
		}

		for _, userID := range userIDs {
			log, err := insertDeliveryLog(ctx, tx, id, userID)
			if err != nil {
				return err
			}
			logs = append(logs, *log)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

const countersFromLogs = `
    SELECT COUNT(*) FILTER (WHERE status='sent') AS sent,
           COUNT(*) FILTER (WHERE status='failed') AS failed
    FROM email_logs WHERE campaign_id=$1
`

func (r *CampaignRepository) RefreshCounters(ctx context.Context, id int64) error {
	_, err := r.DB.ExecContext(ctx, `
        UPDATE email_campaigns c
        SET sent_count=s.sent, failed_count=s.failed, updated_at=NOW()
        FROM (`+countersFromLogs+`) s
        WHERE c.id=$1
    `, id)
	return err
}

func (r *CampaignRepository) CompleteSending(ctx context.Context, id int64, sentAt time.Time) (*model.Campaign, error) {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE email_campaigns c
        SET sent_count=s.sent, failed_count=s.failed, status='sent', sent_at=$2, updated_at=$2
        FROM (`+countersFromLogs+`) s
        WHERE c.id=$1 AND c.status='sending'
    `, id, sentAt)
	if err := r.checkTransition(ctx, res, err, id, model.CampaignSent); err != nil {
		return nil, err
	}
	return r.GetCampaign(ctx, id)
}

func (r *CampaignRepository) ListDue(ctx context.Context, now time.Time, includeDrafts bool) ([]model.Campaign, error) {
	var rows []campaignRow
	query := `SELECT ` + campaignColumns + ` FROM email_campaigns
        WHERE (status='scheduled' AND scheduled_send <= $1)
           OR ($2 AND status='draft')
        ORDER BY COALESCE(scheduled_send, created_at), id`
	if err := r.DB.SelectContext(ctx, &rows, query, now, includeDrafts); err != nil {
		return nil, err
	}
	return r.toModels(ctx, rows)
}

func (r *CampaignRepository) ListStaleSending(ctx context.Context, before time.Time) ([]model.Campaign, error) {
	var rows []campaignRow
	query := `SELECT ` + campaignColumns + ` FROM email_campaigns
        WHERE status='sending' AND updated_at <= $1
        ORDER BY updated_at, id`
	if err := r.DB.SelectContext(ctx, &rows, query, before); err != nil {
		return nil, err
	}
	return r.toModels(ctx, rows)
}

func (r *CampaignRepository) ClaimSending(ctx context.Context, id int64, before time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE email_campaigns SET updated_at=NOW()
        WHERE id=$1 AND status='sending' AND updated_at <= $2
    `, id, before)
	return r.checkTransition(ctx, res, err, id, model.CampaignSending)
}

func (r *CampaignRepository) checkTransition(ctx context.Context, res sql.Result, err error, id int64, to model.CampaignStatus) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return transitionError(ctx, r.DB, id, to)
	}
	return nil
}

// transitionError explains a guarded UPDATE that matched no row.
func transitionError(ctx context.Context, q sqlx.QueryerContext, id int64, to model.CampaignStatus) error {
	var status string
	err := sqlx.GetContext(ctx, q, &status, `SELECT status FROM email_campaigns WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.NewCampaignNotFound(id)
	}
	if err != nil {
		return err
	}
	return &appErrors.InvalidTransitionError{CampaignID: id, From: status, To: string(to)}
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
