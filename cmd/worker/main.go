package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agreedhq/backoffice/internal/app"
	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/heygen"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
	"github.com/agreedhq/backoffice/internal/reminder"
)

// The worker owns the daily pipeline runs: reminder emails at their
// morning slot, call-script generation at midnight, and the
// completed-video poll. Run locks keep it safe to scale replicas.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	runOnce := flag.String("once", "", "run one job immediately and exit (email, call-content, video-poll)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		logger.Error("startup failed", "error", err.Error())
		os.Exit(1)
	}
	defer a.Close()

	sender, err := a.NewMailer(ctx)
	if err != nil {
		logger.Error("initializing mailer failed", "error", err.Error())
		os.Exit(1)
	}

	dispatcher := a.NewDispatcher(sender)

	jobs := []*reminder.Job{
		{Name: reminder.JobEmail, RunAt: cfg.Reminder.EmailRunAt,
			Lock: a.RunLock(reminder.JobEmail), Run: dispatcher.DispatchDueNotifications},
		{Name: reminder.JobCallContent, RunAt: cfg.Reminder.CallContentRunAt,
			Lock: a.RunLock(reminder.JobCallContent), Run: dispatcher.DispatchCallContent},
	}
	if cfg.HeyGen.Enabled {
		poller := heygen.NewPoller(heygen.NewClient(cfg.HeyGen), a.Store, a.Pub)
		jobs = append(jobs, &reminder.Job{
			Name: reminder.JobVideoPoll, RunAt: fmt.Sprintf("%02d:00", cfg.HeyGen.PollHour),
			Lock: a.RunLock(reminder.JobVideoPoll),
			Run: func(ctx context.Context) (*reminder.DispatchReport, error) {
				res, err := poller.Run(ctx)
				if err != nil {
					return nil, err
				}
				return &reminder.DispatchReport{Clients: res.Checked, Sent: res.Completed, Failed: res.Failed}, nil
			},
		})
	}

	sched := reminder.NewScheduler(cfg.Reminder, jobs...)

	if *runOnce != "" {
		rep, err := sched.TriggerNow(ctx, *runOnce)
		if err != nil {
			logger.Error("run failed", "job", *runOnce, "error", err.Error())
			os.Exit(1)
		}
		if rep != nil {
			logger.Info("run finished", "job", *runOnce,
				"sent", rep.Sent, "skipped", rep.Skipped, "failed", rep.Failed)
		}
		return
	}

	logger.Info("worker started", "tz", cfg.Reminder.Timezone)
	sched.Start(ctx)
	logger.Info("worker stopped")
}
