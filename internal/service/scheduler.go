// internal/service/scheduler.go
package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler starts due campaigns on a fixed interval and resumes campaigns
// stuck in sending for longer than StaleAfter.
type Scheduler struct {
	Campaigns  *CampaignService
	Interval   time.Duration
	StaleAfter time.Duration
	Log        zerolog.Logger
	Now        func() time.Time
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Log.Info().Dur("interval", interval).Msg("scheduler started")
	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			s.Log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// Tick sends every campaign that is due now and resumes stale ones. It
// returns how many campaigns finished.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	finished := 0
	if s.StaleAfter > 0 {
		resumed, err := s.Campaigns.ResumeStale(ctx, now.Add(-s.StaleAfter))
		if err != nil {
			s.Log.Warn().Err(err).Msg("some stale campaigns were not resumed")
		}
		if len(resumed) > 0 {
			s.Log.Info().Int("campaigns", len(resumed)).Msg("stale campaigns resumed")
		}
		finished += len(resumed)
	}

	sent, err := s.Campaigns.RunDue(ctx, now, false)
	if err != nil {
		s.Log.Warn().Err(err).Msg("some due campaigns were not sent")
	}
	if len(sent) > 0 {
		s.Log.Info().Int("campaigns", len(sent)).Msg("due campaigns sent")
	}
	return finished + len(sent)
}
