// internal/queue/subscriber.go
package queue

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/model"
)

// CampaignSender runs one campaign send.
type CampaignSender interface {
	SendCampaign(ctx context.Context, id int64) (*model.Campaign, error)
}

// SendJobHandler decodes SendJob bodies and runs them. Errors that a retry
// cannot fix are logged and acknowledged.
func SendJobHandler(sender CampaignSender, log zerolog.Logger) Handler {
	return func(ctx context.Context, body []byte) error {
		var job SendJob
		if err := json.Unmarshal(body, &job); err != nil || job.CampaignID <= 0 {
			log.Error().Err(err).Bytes("payload", body).Msg("invalid send job, dropping")
			return nil
		}

		log := log.With().Int64("campaign_id", job.CampaignID).Logger()
		log.Info().Msg("processing queued campaign send")

		c, err := sender.SendCampaign(ctx, job.CampaignID)
		if err != nil {
			if appErrors.IsPermanent(err) {
				log.Warn().Err(err).Msg("campaign send rejected, not retrying")
				return nil
			}
			return err
		}

		log.Info().
			Str("status", string(c.Status)).
			Int("sent", c.SentCount).
			Int("failed", c.FailedCount).
			Msg("campaign send finished")
		return nil
	}
}

// StartCampaignSendSubscriber wires the send-job handler to q.
func StartCampaignSendSubscriber(ctx context.Context, q Queue, sender CampaignSender, log zerolog.Logger) error {
	return q.Subscribe(ctx, CampaignSendsTopic, SendJobHandler(sender, log))
}
