package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/goliatone/go-interview-scoring/adapters/gocommand"
	"github.com/spf13/cobra"
)

func newRunOnceCommand(opts *rootOptions) *cobra.Command {
	var migrateFirst bool
	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Claim and score at most one pending job, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOnce(cmd.Context(), opts, migrateFirst, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "apply migrations before running")
	return cmd
}

type runOnceReport struct {
	Outcome     string `json:"outcome"`
	JobID       string `json:"job_id,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	Attempts    int    `json:"attempts,omitempty"`
	EmailSent   bool   `json:"email_sent,omitempty"`
	FailureKind string `json:"failure_kind,omitempty"`
	Error       string `json:"error,omitempty"`
}

func runOnce(ctx context.Context, opts *rootOptions, migrateFirst bool, out io.Writer) error {
	cfg, err := loadConfig(ctx, opts.v)
	if err != nil {
		return err
	}
	settings, err := loadProviderSettings(opts.v)
	if err != nil {
		return err
	}
	a, err := bootstrap(ctx, cfg, settings, bootstrapOptions{migrate: migrateFirst})
	if err != nil {
		return err
	}
	defer a.close()

	subs, err := gocommand.RegisterScoringHandlers(gocommand.NewRegistryAdapter(nil), gocommand.ScoringHandlers{
		Cycles: a.service,
	})
	if err != nil {
		return err
	}
	defer subs.Unsubscribe()

	outcome, err := gocommand.RunScoringCycle(ctx, "cli")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(runOnceReport{
		Outcome:     string(outcome.Status),
		JobID:       outcome.JobID,
		SessionID:   outcome.SessionID,
		Attempts:    outcome.Attempts,
		EmailSent:   outcome.EmailSent,
		FailureKind: string(outcome.FailureKind),
		Error:       outcome.Error,
	})
}
