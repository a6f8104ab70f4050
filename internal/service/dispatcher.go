// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/badoux/checkmail"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	appErrors "github.com/hyggeo/campaign-service/internal/errors"
	"github.com/hyggeo/campaign-service/internal/mailer"
	"github.com/hyggeo/campaign-service/internal/metrics"
	"github.com/hyggeo/campaign-service/internal/model"
	"github.com/hyggeo/campaign-service/internal/repository"
)

// DeliveryJob pairs a pending log row with its recipient.
type DeliveryJob struct {
	Log  model.DeliveryLog
	User model.User
}

type DispatchResult struct {
	Sent   int
	Failed int
}

// Dispatcher delivers pending rows through a bounded pool of workers.
type Dispatcher struct {
	Mailer  mailer.Mailer
	Logs    repository.DeliveryLogRepositoryInterface
	Workers int
	Limiter *rate.Limiter
	Metrics *metrics.Metrics
	Log     zerolog.Logger
	Now     func() time.Time
}

// NewDispatcher builds a dispatcher. ratePerSecond <= 0 disables throttling.
func NewDispatcher(m mailer.Mailer, logs repository.DeliveryLogRepositoryInterface, workers int, ratePerSecond float64, mt *metrics.Metrics, log zerolog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &Dispatcher{
		Mailer:  m,
		Logs:    logs,
		Workers: workers,
		Limiter: limiter,
		Metrics: mt,
		Log:     log,
		Now:     time.Now,
	}
}

// Dispatch renders and sends every job. Transport failures are recorded on
// the row, and a row that rejects its outcome is closed as failed. Only a
// store that refuses both writes returns an error, which stops new jobs from
// starting. Cancelling ctx does not interrupt a dispatch in flight.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []DeliveryJob, render func(model.User) mailer.Message) (DispatchResult, error) {
	var (
		mu     sync.Mutex
		result DispatchResult
	)

	g, gctx := errgroup.WithContext(context.WithoutCancel(ctx))
	g.SetLimit(d.Workers)

	for _, job := range jobs {
		job := job
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if d.Limiter != nil {
				if err := d.Limiter.Wait(gctx); err != nil {
					return err
				}
			}

			status, err := d.deliver(gctx, job, render)
			if err != nil {
				return err
			}

			mu.Lock()
			switch status {
			case model.DeliverySent:
				result.Sent++
			case model.DeliveryFailed:
				result.Failed++
			}
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return result, err
}

func (d *Dispatcher) deliver(ctx context.Context, job DeliveryJob, render func(model.User) mailer.Message) (model.DeliveryStatus, error) {
	msg := render(job.User)
	log := d.Log.With().
		Int64("campaign_id", job.Log.CampaignID).
		Int64("user_id", job.User.ID).
		Logger()

	var sendErr error
	if err := checkmail.ValidateFormat(job.User.Email); err != nil {
		sendErr = &appErrors.DeliveryError{UserID: job.User.ID, Email: job.User.Email, Err: err}
	} else if err := d.Mailer.Send(ctx, msg); err != nil {
		sendErr = &appErrors.DeliveryError{UserID: job.User.ID, Email: job.User.Email, Err: err}
	}

	subject := truncateRunes(msg.Subject, maxSubjectSnapshot)
	status := model.DeliverySent
	var err error
	if sendErr != nil {
		status = model.DeliveryFailed
		err = d.Logs.MarkDeliveryFailed(ctx, job.Log.ID, subject, sendErr.Error())
	} else {
		err = d.Logs.MarkDelivered(ctx, job.Log.ID, subject, d.Now())
	}

	if err != nil && !errors.Is(err, appErrors.ErrDeliveryFinalized) {
		// The row could not take this outcome. Close it as failed without the
		// snapshot; if even that is refused the store itself is unavailable.
		log.Warn().Err(err).Int64("log_id", job.Log.ID).Msg("failed to record delivery, closing row as failed")
		fallbackErr := d.Logs.MarkDeliveryFailed(ctx, job.Log.ID, "", "failed to record delivery: "+err.Error())
		if fallbackErr != nil && !errors.Is(fallbackErr, appErrors.ErrDeliveryFinalized) {
			return "", fmt.Errorf("failed to record delivery %d: %w", job.Log.ID, err)
		}
		status, sendErr, err = model.DeliveryFailed, err, fallbackErr
	}

	if errors.Is(err, appErrors.ErrDeliveryFinalized) {
		log.Warn().Int64("log_id", job.Log.ID).Msg("delivery already finalized, skipping")
		return "", nil
	}

	if d.Metrics != nil {
		d.Metrics.Deliveries.WithLabelValues(string(status)).Inc()
	}
	if sendErr != nil {
		log.Warn().Err(sendErr).Str("status", string(status)).Msg("delivery failed")
	} else {
		log.Debug().Str("status", string(status)).Msg("delivery sent")
	}
	return status, nil
}

// maxSubjectSnapshot bounds the subject copied onto a delivery row.
const maxSubjectSnapshot = 300

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
