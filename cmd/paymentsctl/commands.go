package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"creator-platform/internal/payments"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.store.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Schema applied")
		return nil
	},
}

var sweepTTL time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-check stale pending transactions with the gateway",
	Long: `Re-check stale pending transactions with the gateway.

Transactions older than the pending TTL are verified again. Orders the
gateway has never seen are cancelled; the rest are settled or left pending.
--ttl may not be shorter than the checkout expiry (PENDING_TTL).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		ttl := e.cfg.Payments.PendingTTL
		if sweepTTL > 0 {
			ttl = sweepTTL
		}
		report, err := payments.NewSweeper(e.store, e.verifier, e.reconciler, ttl, e.logger).
			WithOrderExpiry(e.cfg.Gateway.OrderExpiry).
			Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		fmt.Printf("Scanned %d: %d completed, %d failed, %d cancelled, %d still pending, %d errors\n",
			report.Scanned, report.Completed, report.Failed, report.Cancelled, report.StillPending, report.Errors)
		return nil
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepTTL, "ttl", 0, "override the pending TTL")
}

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and replay reconciliation alerts",
	}

	var listLimit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List open reconciliation alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			alerts, err := e.store.ListOpenAlerts(cmd.Context(), listLimit)
			if err != nil {
				return err
			}
			if len(alerts) == 0 {
				fmt.Println("No open alerts")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTRANSACTION\tKIND\tCREATED\tDETAIL")
			for _, a := range alerts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.TransactionID, a.Kind, a.CreatedAt.Format(time.RFC3339), a.Detail)
			}
			return w.Flush()
		},
	}
	list.Flags().IntVarP(&listLimit, "limit", "n", 50, "maximum alerts to show")

	var replayLimit int
	replay := &cobra.Command{
		Use:   "replay",
		Short: "Retry the work recorded by open alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.reconciler.ReplayAlerts(cmd.Context(), replayLimit)
			if err != nil {
				return fmt.Errorf("replay alerts: %w", err)
			}
			fmt.Printf("Resolved %d, skipped %d, failed %d\n", report.Resolved, report.Skipped, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%d alerts could not be replayed", report.Failed)
			}
			return nil
		},
	}
	replay.Flags().IntVarP(&replayLimit, "limit", "n", 100, "maximum alerts to replay")

	cmd.AddCommand(list, replay)
	return cmd
}

func chargesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charges",
		Short: "Inspect scheduled membership charges",
	}

	var within time.Duration
	var limit int
	due := &cobra.Command{
		Use:   "due",
		Short: "List membership charges due within a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			charges, err := e.store.DueCharges(cmd.Context(), time.Now().UTC().Add(within), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SUPPORTER\tCHARGE AT")
			for _, c := range charges {
				fmt.Fprintf(w, "%s\t%s\n", c.SupporterID, c.ChargeAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	due.Flags().DurationVar(&within, "within", 0, "include charges due this far in the future")
	due.Flags().IntVarP(&limit, "limit", "n", 100, "maximum charges to show")

	cmd.AddCommand(due)
	return cmd
}
