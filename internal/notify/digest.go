package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/daryaKuto/glowrange/internal/history"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// DigestOpts holds parameters for creating a digest scheduler.
type DigestOpts struct {
	DB       *gorm.DB
	Notifier *Notifier
	Expr     string        // 5-field cron expression
	Period   time.Duration // lookback window per digest, default 24h
}

// Digest periodically publishes a practice report built from the session
// history. Digests with no activity in the period are suppressed.
type Digest struct {
	db       *gorm.DB
	notifier *Notifier
	sched    cron.Schedule
	period   time.Duration
}

// NewDigest creates a digest scheduler.
func NewDigest(opts DigestOpts) (*Digest, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("notify: digest db is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("notify: digest notifier is required")
	}
	sched, err := cronParser.Parse(opts.Expr)
	if err != nil {
		return nil, fmt.Errorf("notify: digest cron %q: %w", opts.Expr, err)
	}
	period := opts.Period
	if period <= 0 {
		period = 24 * time.Hour
	}
	return &Digest{db: opts.DB, notifier: opts.Notifier, sched: sched, period: period}, nil
}

// Run fires digests on the schedule until the context is cancelled.
func (d *Digest) Run(ctx context.Context) {
	for {
		next := d.sched.Next(time.Now())
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		ev, err := d.Build(time.Now())
		if err != nil {
			log.Printf("notify: digest: %v", err)
			continue
		}
		if ev == nil {
			continue
		}
		d.notifier.Publish(ctx, *ev)
	}
}

// Build assembles the digest event for the period ending at now. Returns
// nil when the period had no sessions.
func (d *Digest) Build(now time.Time) (*FormattedEvent, error) {
	report, err := history.BuildReport(d.db, now.Add(-d.period), now)
	if err != nil {
		return nil, err
	}
	if report.Sessions == 0 {
		return nil, nil
	}
	ev := FormatDigest(report)
	return &ev, nil
}
