package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/receptionist-scheduler/internal/holds"
	"github.com/wolfman30/receptionist-scheduler/internal/reaper"
)

func newGroupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "group <group_id>",
		Short: "List the holds proposed together in one group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []holds.Hold
			err := a.withLedger(cmd.Context(), func(ctx context.Context, l holds.Ledger) error {
				var err error
				rows, err = l.ListByGroup(ctx, args[0])
				return err
			})
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return fmt.Errorf("no holds in group %s", args[0])
			}
			return printHolds(a.out, rows, a.cfg.Location())
		},
	}
}

func newHoldCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hold <hold_id>",
		Short: "Show one hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var row *holds.Hold
			err := a.withLedger(cmd.Context(), func(ctx context.Context, l holds.Ledger) error {
				var err error
				row, err = l.Get(ctx, args[0])
				return err
			})
			if errors.Is(err, holds.ErrHoldNotFound) {
				return fmt.Errorf("hold %s not found or expired", args[0])
			}
			if err != nil {
				return err
			}
			return printHolds(a.out, []holds.Hold{*row}, a.cfg.Location())
		},
	}
}

func newReapCmd(a *app) *cobra.Command {
	var ttl time.Duration
	var batch int

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Expire tentative holds older than the hold TTL",
		Long: `Release tentative holds whose TTL has lapsed: cancel each calendar event
and delete the ledger row. Holds whose event cannot be cancelled are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.holdStore(ctx)
			if err != nil {
				return err
			}
			gw, err := a.calendar(ctx)
			if err != nil {
				return fmt.Errorf("calendar: %w", err)
			}
			if ttl <= 0 {
				ttl = a.cfg.HoldTTL
			}
			n, err := reaper.New(store, gw, a.logger).
				WithTTL(ttl).
				WithBatchSize(batch).
				WithClock(a.now).
				Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "expired %d hold(s)\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Hold age to expire (default: HOLD_TTL)")
	cmd.Flags().IntVar(&batch, "batch", 500, "Maximum holds to expire in one run")
	return cmd
}

func (a *app) withLedger(ctx context.Context, fn func(ctx context.Context, l holds.Ledger) error) error {
	store, err := a.holdStore(ctx)
	if err != nil {
		return err
	}
	return store.WithTx(ctx, fn)
}

func printHolds(w io.Writer, rows []holds.Hold, loc *time.Location) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOLD ID\tSTATUS\tSTART\tEVENT ID\tSLOT ID")
	for _, h := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			h.HoldID, h.Status, h.Start.In(loc).Format("Mon Jan 2 15:04 MST"), h.EventID, h.SlotID)
	}
	return tw.Flush()
}
