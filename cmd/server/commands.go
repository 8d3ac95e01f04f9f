package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/simaogato/lnmomo-backend/internal/adapter/catalog"
	"github.com/simaogato/lnmomo-backend/internal/adapter/repository/postgres"
)

// relayFlush gives the relay time to forward the last transitions of a one-shot command
const relayFlush = 250 * time.Millisecond

func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile every in-flight transaction once and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := commandContext(cmd)
			defer stop()
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			stopRelay := startRelay(ctx, a)
			report, err := a.sweep.Run(ctx)
			stopRelay()
			if err != nil && report == nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.FailedCount > 0 {
				return fmt.Errorf("%d of %d transactions failed to reconcile", report.FailedCount, report.ProcessedCount)
			}
			return err
		},
	}
}

func checkCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check [transaction-id]",
		Short: "Reconcile a single transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid transaction ID: %w", err)
			}

			ctx, stop := commandContext(cmd)
			defer stop()
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			stopRelay := startRelay(ctx, a)
			out, err := a.reconcile.Check(ctx, id)
			stopRelay()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"id":                   out.Transaction.ID,
				"initialStatus":        out.InitialStatus,
				"status":               out.Status(),
				"paidAt":               out.PaidAt,
				"mobileMoneyReference": out.MobileMoneyReference,
				"message":              out.Message,
				"skipped":              out.Skipped,
			})
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the transactions table and its indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return errors.New("migrate requires database.driver=postgres")
			}

			db, err := postgres.NewDB(cfg.Database.URL, 1)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := commandContext(cmd)
			defer stop()
			if err := db.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("schema applied")
			return nil
		},
	}
}

func networksCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List the mobile-money networks payouts can target",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			networks, err := catalog.Load(cfg.Catalog.Path)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tCOUNTRY\tNAME")
			for _, n := range networks.List() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", n.ID, n.Code, n.Country, n.Name)
			}
			return w.Flush()
		},
	}
}

// commandContext is cancelled on SIGINT or SIGTERM. The command then returns
// normally, so writes that outlive cancellation finish before the process exits.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGTERM, syscall.SIGINT)
}

// startRelay forwards the transitions of a one-shot command to the other
// processes. The returned func flushes and stops it.
func startRelay(ctx context.Context, a *app) func() {
	if a.relay == nil {
		return func() {}
	}
	relayCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.relay.Run(relayCtx); err != nil {
			a.logger.Warn("event relay stopped", "error", err)
		}
	}()
	select {
	case <-a.relay.Ready():
	case <-done:
	case <-time.After(2 * time.Second):
		a.logger.Warn("event relay not ready, transitions stay local")
	}
	return func() {
		time.Sleep(relayFlush)
		cancel()
		<-done
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
