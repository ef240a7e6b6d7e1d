package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wolfman30/receptionist-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/receptionist-scheduler/internal/booking"
	"github.com/wolfman30/receptionist-scheduler/internal/holds"
)

func newSlotsCmd(a *app) *cobra.Command {
	var dateRange string
	var limit int

	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Preview the slots a caller would be offered",
		Long: `Query the calendar for free slots in a date range such as "tomorrow
afternoon" or "2026-03-02". Nothing is reserved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			gw, err := a.calendar(ctx)
			if err != nil {
				return fmt.Errorf("calendar: %w", err)
			}
			opts, err := bootstrap.BuildBookingOptions(a.cfg)
			if err != nil {
				return err
			}
			if limit > 0 {
				opts.Slots.Limit = limit
			}
			orch := booking.New(booking.Deps{
				Store:    holds.NewMemoryStore(),
				Calendar: gw,
				Logger:   a.logger,
				Now:      a.now,
			}, opts)

			slots, err := orch.Preview(ctx, dateRange)
			if err != nil {
				return err
			}
			if len(slots) == 0 {
				fmt.Fprintln(a.out, "no availability")
				return nil
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SLOT ID\tWHEN")
			for _, s := range slots {
				fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Display)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&dateRange, "range", "", "Date range to search, e.g. \"next week\" (default: from now)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of slots (default: SLOT_LIMIT)")
	return cmd
}
