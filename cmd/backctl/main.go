// backctl is the operations CLI: inspect client records, ingest
// contracts, and run pipeline jobs outside their daily slots.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/agreedhq/backoffice/internal/app"
	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/intake"
	"github.com/agreedhq/backoffice/internal/reminder"
)

func main() {
	cliApp := &cli.App{
		Name:  "backctl",
		Usage: "AgreeD back-office operations",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to config file"},
		},
		Commands: []*cli.Command{
			{
				Name:  "clients",
				Usage: "inspect client records",
				Subcommands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "list all client records",
						Action: withApp(listClients),
					},
					{
						Name:      "show",
						Usage:     "print one record as JSON",
						ArgsUsage: "<client-id>",
						Action:    withApp(showClient),
					},
				},
			},
			{
				Name:      "run",
				Usage:     "run a pipeline job now (email, call-content)",
				ArgsUsage: "<job>",
				Action:    withApp(runJob),
			},
			{
				Name:      "intake",
				Usage:     "ingest a contract document from disk",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Usage: "recipient email for the new record"},
				},
				Action: withApp(intakeFile),
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func withApp(fn func(ctx context.Context, a *app.App, c *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.LoadFromEnv(c.String("config"))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		ctx := context.Background()
		a, err := app.Build(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, a, c)
	}
}

func listClients(ctx context.Context, a *app.App, _ *cli.Context) error {
	clients, err := a.Store.FindAll(ctx)
	if err != nil {
		return err
	}
	for _, rec := range clients {
		fmt.Printf("%s  %-30s  %s  dates=%d notifications=%d\n",
			rec.ID, rec.ClientName, rec.RecipientEmail, len(rec.Dates), len(rec.NotificationLog))
	}
	fmt.Printf("%d records\n", len(clients))
	return nil
}

func showClient(ctx context.Context, a *app.App, c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: backctl clients show <client-id>")
	}
	rec, err := a.Store.FindByID(ctx, c.Args().First())
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runJob(ctx context.Context, a *app.App, c *cli.Context) error {
	jobName := c.Args().First()
	if jobName == "" {
		jobName = reminder.JobEmail
	}

	sender, err := a.NewMailer(ctx)
	if err != nil {
		return err
	}
	dispatcher := a.NewDispatcher(sender)

	var job *reminder.Job
	switch jobName {
	case reminder.JobEmail:
		job = &reminder.Job{Name: jobName, RunAt: a.Cfg.Reminder.EmailRunAt,
			Lock: a.RunLock(jobName), Run: dispatcher.DispatchDueNotifications}
	case reminder.JobCallContent:
		job = &reminder.Job{Name: jobName, RunAt: a.Cfg.Reminder.CallContentRunAt,
			Lock: a.RunLock(jobName), Run: dispatcher.DispatchCallContent}
	default:
		return fmt.Errorf("unknown job %q", jobName)
	}

	sched := reminder.NewScheduler(a.Cfg.Reminder, job)
	rep, err := sched.TriggerNow(ctx, jobName)
	if err != nil {
		return err
	}
	if rep == nil {
		fmt.Println("run lock held by another replica")
		return nil
	}
	fmt.Printf("clients=%d attempted=%d sent=%d skipped=%d failed=%d elapsed=%s\n",
		rep.Clients, rep.Attempted, rep.Sent, rep.Skipped, rep.Failed, rep.Elapsed)
	for _, f := range rep.Failures {
		fmt.Printf("  FAILED %s %s (%s): %s\n", f.ClientID, f.RelatedDate, f.DateType, f.Reason)
	}
	return nil
}

func intakeFile(ctx context.Context, a *app.App, c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("usage: backctl intake <file>")
	}
	path := c.Args().First()
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	svc := intake.NewService(a.Store, a.Docs, a.Gen, a.Pub)
	rec, err := svc.Process(ctx, filepath.Base(path), data, c.String("email"))
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%s) with %d dates\n", rec.ID, rec.ClientName, len(rec.Dates))
	return nil
}
