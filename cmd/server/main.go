package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agreedhq/backoffice/internal/api"
	"github.com/agreedhq/backoffice/internal/app"
	"github.com/agreedhq/backoffice/internal/auth"
	"github.com/agreedhq/backoffice/internal/calendar"
	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/esign"
	"github.com/agreedhq/backoffice/internal/heygen"
	"github.com/agreedhq/backoffice/internal/intake"
	"github.com/agreedhq/backoffice/internal/payments"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
	"github.com/agreedhq/backoffice/internal/reminder"
	"github.com/agreedhq/backoffice/internal/voice"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
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

	// The scheduler here is trigger-only; the worker binary runs the
	// daily loops. Both share the run locks, so a manual trigger and a
	// scheduled run never collide.
	jobs := []*reminder.Job{
		{Name: reminder.JobEmail, RunAt: cfg.Reminder.EmailRunAt,
			Lock: a.RunLock(reminder.JobEmail), Run: dispatcher.DispatchDueNotifications},
		{Name: reminder.JobCallContent, RunAt: cfg.Reminder.CallContentRunAt,
			Lock: a.RunLock(reminder.JobCallContent), Run: dispatcher.DispatchCallContent},
	}

	var videoClient *heygen.Client
	if cfg.HeyGen.Enabled {
		videoClient = heygen.NewClient(cfg.HeyGen)
		poller := heygen.NewPoller(videoClient, a.Store, a.Pub)
		jobs = append(jobs, &reminder.Job{
			Name: reminder.JobVideoPoll, RunAt: fmt.Sprintf("%02d:00", cfg.HeyGen.PollHour),
			Lock: a.RunLock(reminder.JobVideoPoll), Run: videoPollRunner(poller),
		})
	}

	sched := reminder.NewScheduler(cfg.Reminder, jobs...)

	var esignClient *esign.Client
	if cfg.DocuSign.Enabled {
		esignClient = esign.NewClient(cfg.DocuSign)
	}
	var caller *voice.TwilioCaller
	if cfg.Twilio.Enabled {
		caller = voice.NewTwilioCaller(cfg.Twilio)
	}
	var pay *payments.Client
	if cfg.Stripe.Enabled {
		pay = payments.NewClient(cfg.Stripe)
	}
	var cal *calendar.Scheduler
	if cfg.Calendar.Enabled {
		cal = calendar.NewScheduler(ctx, cfg.Calendar)
	}

	intakeSvc := intake.NewService(a.Store, a.Docs, a.Gen, a.Pub)

	var authManager *auth.Manager
	if cfg.Auth.Enabled {
		baseURL := fmt.Sprintf("http://%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
		if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
			baseURL = v
		}
		authManager = auth.NewManager(cfg.Auth, baseURL)
		authManager.StartSessionJanitor(ctx)
	}

	// Disabled integrations stay nil interfaces so their routes answer
	// 503 instead of calling out with empty credentials.
	deps := api.HandlerDeps{
		Store:  a.Store,
		Intake: intakeSvc,
		Gen:    a.Gen,
		Runner: sched,
	}
	if videoClient != nil {
		deps.Video = videoClient
	}
	if esignClient != nil {
		deps.Esign = esignClient
	}
	if caller != nil {
		deps.Voice = caller
	}
	if pay != nil {
		deps.Payments = pay
	}
	if cal != nil {
		deps.Calendar = cal
	}

	server := api.NewServer(cfg.Server, api.NewHandlers(deps), authManager)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.WaitTimeout)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && ctx.Err() == nil {
		logger.Error("server stopped", "error", err.Error())
		os.Exit(1)
	}
}

func videoPollRunner(p *heygen.Poller) reminder.Runner {
	return func(ctx context.Context) (*reminder.DispatchReport, error) {
		res, err := p.Run(ctx)
		if err != nil {
			return nil, err
		}
		return &reminder.DispatchReport{
			Clients: res.Checked,
			Sent:    res.Completed,
			Failed:  res.Failed,
		}, nil
	}
}
