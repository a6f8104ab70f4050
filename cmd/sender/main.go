// cmd/sender/main.go

// Command sender sends campaigns once, from cron or by hand.
//
//	sender                   send scheduled campaigns that are due
//	sender -force            also send drafts
//	sender -campaign-id 12   send one campaign
//	sender -dry-run          report recipients without sending
//	sender -resume           finish campaigns stuck in sending
//	sender -resume -campaign-id 12
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/hyggeo/campaign-service/internal/app"
	"github.com/hyggeo/campaign-service/internal/config"
	"github.com/hyggeo/campaign-service/internal/logger"
	"github.com/hyggeo/campaign-service/internal/model"
)

func main() {
	campaignID := flag.Int64("campaign-id", 0, "send only this campaign")
	dryRun := flag.Bool("dry-run", false, "show what would be sent without sending")
	force := flag.Bool("force", false, "send draft campaigns too, not only due scheduled ones")
	resume := flag.Bool("resume", false, "finish campaigns stuck in sending instead of starting new ones")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatal := zerolog.New(os.Stderr)
		fatal.Fatal().Err(err).Msg("failed to load config")
	}

	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fatal := zerolog.New(os.Stderr)
		fatal.Fatal().Err(err).Msg("failed to build logger")
	}
	log = log.With().Str("service", "sender").Logger()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log, false)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start")
	}

	err = run(ctx, a, options{
		campaignID: *campaignID,
		dryRun:     *dryRun,
		force:      *force,
		resume:     *resume,
		staleAfter: cfg.SendingStaleAfter,
	})
	a.Close()
	if err != nil {
		log.Error().Err(err).Msg("send failed")
		os.Exit(1)
	}
}

type options struct {
	campaignID int64
	dryRun     bool
	force      bool
	resume     bool
	staleAfter time.Duration
}

func run(ctx context.Context, a *app.App, opts options) error {
	if opts.resume {
		return resume(ctx, a, opts)
	}

	var ids []int64
	if opts.campaignID > 0 {
		ids = []int64{opts.campaignID}
	} else {
		due, err := a.Campaigns.Campaigns.ListDue(ctx, time.Now(), opts.force)
		if err != nil {
			return err
		}
		for _, c := range due {
			ids = append(ids, c.ID)
		}
	}

	if len(ids) == 0 {
		fmt.Println("No campaigns ready to send.")
		return nil
	}

	if opts.dryRun {
		fmt.Println("DRY RUN MODE - no emails will be sent")
		for _, id := range ids {
			report, err := a.Campaigns.DryRun(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("Campaign %d %q [%s, %s]: template %q, audience %s, %d recipients\n",
				report.CampaignID, report.Name, report.Status, report.Mode, report.Template, report.Audience, report.Recipients)
			for _, u := range report.Sample {
				fmt.Printf("  - %s <%s>\n", u.Username, u.Email)
			}
		}
		return nil
	}

	var failed int
	for _, id := range ids {
		c, err := a.Campaigns.SendCampaign(ctx, id)
		if err != nil {
			fmt.Printf("Campaign %d: %v\n", id, err)
			failed++
			continue
		}
		printResult(c)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d campaigns were not sent", failed, len(ids))
	}
	return nil
}

// resume finishes campaigns left in sending. A named campaign is taken over
// at once; otherwise only those idle for staleAfter are picked up.
func resume(ctx context.Context, a *app.App, opts options) error {
	now := time.Now()
	if opts.campaignID > 0 {
		c, err := a.Campaigns.ResumeSending(ctx, opts.campaignID, now)
		if err != nil {
			return err
		}
		printResult(c)
		return nil
	}

	done, err := a.Campaigns.ResumeStale(ctx, now.Add(-opts.staleAfter))
	for _, c := range done {
		printResult(&c)
	}
	if len(done) == 0 && err == nil {
		fmt.Println("No campaigns stuck in sending.")
	}
	return err
}

func printResult(c *model.Campaign) {
	fmt.Printf("Campaign %d %q: %s, %d sent, %d failed of %d recipients\n",
		c.ID, c.Name, c.Status, c.SentCount, c.FailedCount, c.TotalRecipients)
}
