// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignFailed    CampaignStatus = "failed"
)

// Sendable reports whether a send may start from this status.
func (s CampaignStatus) Sendable() bool {
	return s == CampaignDraft || s == CampaignScheduled
}

func (s CampaignStatus) Terminal() bool {
	return s == CampaignSent || s == CampaignFailed
}

type CampaignMode string

const (
	ModeTest CampaignMode = "test"
	ModeLive CampaignMode = "live"
)

type Campaign struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	TemplateID      int64          `json:"template_id"`
	Audience        Audience       `json:"audience"`
	Mode            CampaignMode   `json:"mode"`
	Status          CampaignStatus `json:"status"`
	ScheduledSend   *time.Time     `json:"scheduled_send,omitempty"`
	TotalRecipients int            `json:"total_recipients"`
	SentCount       int            `json:"sent_count"`
	FailedCount     int            `json:"failed_count"`
	CreatedBy       *int64         `json:"created_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	SentAt          *time.Time     `json:"sent_at,omitempty"`
}

// CampaignStats pairs a campaign with live delivery counts by status.
type CampaignStats struct {
	Campaign
	Stats map[string]int `json:"stats"`
}
