// internal/repository/delivery_log_repository.go
package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/model"
)

type DeliveryLogRepository struct {
	BaseRepository
}

func NewDeliveryLogRepository(base BaseRepository) *DeliveryLogRepository {
	return &DeliveryLogRepository{BaseRepository: base}
}

const deliveryLogColumns = `id, campaign_id, user_id, status, subject, error_message, sent_at, created_at`

// InsertDeliveryLog never reads before writing; the unique constraint on
// (campaign_id, user_id) decides.
func (r *DeliveryLogRepository) InsertDeliveryLog(ctx context.Context, campaignID, userID int64) (*model.DeliveryLog, error) {
	return insertDeliveryLog(ctx, r.DB, campaignID, userID)
}

func insertDeliveryLog(ctx context.Context, q sqlx.QueryerContext, campaignID, userID int64) (*model.DeliveryLog, error) {
	query := `
        INSERT INTO email_logs (campaign_id, user_id, status)
        VALUES ($1, $2, 'pending')
        RETURNING ` + deliveryLogColumns
	var log model.DeliveryLog
	if err := sqlx.GetContext(ctx, q, &log, query, campaignID, userID); err != nil {
		if isUniqueViolation(err) {
			return nil, &appErrors.DuplicateDeliveryError{CampaignID: campaignID, UserID: userID}
		}
		return nil, err
	}
	return &log, nil
}

func (r *DeliveryLogRepository) MarkDelivered(ctx context.Context, id int64, subject string, sentAt time.Time) error {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE email_logs SET status='sent', subject=$1, error_message='', sent_at=$2
        WHERE id=$3 AND status='pending'
    `, subject, sentAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrDeliveryFinalized
	}
	return nil
}

func (r *DeliveryLogRepository) MarkDeliveryFailed(ctx context.Context, id int64, subject, errMsg string) error {
	res, err := r.DB.ExecContext(ctx, `
        UPDATE email_logs SET status='failed', subject=$1, error_message=$2
        WHERE id=$3 AND status='pending'
    `, subject, errMsg, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return appErrors.ErrDeliveryFinalized
	}
	return nil
}

func (r *DeliveryLogRepository) ListDeliveryLogs(ctx context.Context, campaignID int64, status model.DeliveryStatus) ([]model.DeliveryLog, error) {
	logs := []model.DeliveryLog{}
	err := r.DB.SelectContext(ctx, &logs, `
        SELECT `+deliveryLogColumns+` FROM email_logs
        WHERE campaign_id=$1 AND ($2 = '' OR status = $2)
        ORDER BY id
    `, campaignID, string(status))
	return logs, err
}

func (r *DeliveryLogRepository) CountByStatus(ctx context.Context, campaignID int64) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM email_logs WHERE campaign_id=$1 GROUP BY status`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{"total": 0, "pending": 0, "sent": 0, "failed": 0}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

var _ DeliveryLogRepositoryInterface = (*DeliveryLogRepository)(nil)
