// internal/model/delivery_log.go
package model

import "time"

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// DeliveryLog is one row per (campaign, user). Subject is the rendered
// subject actually sent, not the template's current one.
type DeliveryLog struct {
	ID           int64          `db:"id" json:"id"`
	CampaignID   int64          `db:"campaign_id" json:"campaign_id"`
	UserID       int64          `db:"user_id" json:"user_id"`
	Status       DeliveryStatus `db:"status" json:"status"`
	Subject      string         `db:"subject" json:"subject"`
	ErrorMessage string         `db:"error_message" json:"error_message,omitempty"`
	SentAt       *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
