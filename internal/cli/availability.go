package cli

import (
	"context"

	"tour-inventory/internal/clock"
	"tour-inventory/internal/service"

	"github.com/spf13/cobra"
)

func newAvailabilityCmd() *cobra.Command {
	var (
		tourID       string
		start        string
		end          string
		participants int
	)

	c := &cobra.Command{
		Use:   "availability",
		Short: "Show availability and prices for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := parseDateFlag("start", start)
			if err != nil {
				return err
			}
			endDate := startDate
			if end != "" {
				if endDate, err = parseDateFlag("end", end); err != nil {
					return err
				}
			}

			ctx := context.Background()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			clk := clock.NewSystem()
			svc := service.NewAvailabilityService(sess.store, service.NewPricingResolver(sess.store, clk), sess.cache, clk, sess.cfg.Business.MaxBulkRangeDays)
			result, err := svc.CheckRange(ctx, tourID, startDate, endDate, participants)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	c.Flags().StringVar(&tourID, "tour", "", "Tour ID")
	c.Flags().StringVar(&start, "start", "", "First date (YYYY-MM-DD)")
	c.Flags().StringVar(&end, "end", "", "Last date (YYYY-MM-DD); defaults to --start")
	c.Flags().IntVar(&participants, "participants", 1, "Party size")
	_ = c.MarkFlagRequired("tour")
	_ = c.MarkFlagRequired("start")

	return c
}
