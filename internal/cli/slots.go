package cli

import (
	"context"

	"tour-inventory/internal/clock"
	"tour-inventory/internal/service"

	"github.com/spf13/cobra"
)

func newSlotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Edit per-date inventory",
	}
	cmd.AddCommand(newSlotsApplyCmd())
	return cmd
}

func newSlotsApplyCmd() *cobra.Command {
	var (
		tourID     string
		start      string
		end        string
		capacity   int
		price      int64
		clearPrice bool
		available  bool
		updatedBy  string
	)

	c := &cobra.Command{
		Use:   "apply",
		Short: "Apply a capacity/price/availability edit to a date range",
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

			edit := service.SlotEdit{ClearPriceOverride: clearPrice, UpdatedBy: updatedBy}
			if cmd.Flags().Changed("capacity") {
				edit.MaxCapacity = &capacity
			}
			if cmd.Flags().Changed("price") {
				edit.BasePriceOverride = &price
			}
			if cmd.Flags().Changed("available") {
				edit.IsAvailable = &available
			}

			ctx := context.Background()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			editor := service.NewBulkEditor(sess.store, sess.publisher, sess.cache, clock.NewSystem(), sess.cfg.Business.MaxBulkRangeDays)
			result, err := editor.ApplyRange(ctx, tourID, startDate, endDate, edit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	c.Flags().StringVar(&tourID, "tour", "", "Tour ID")
	c.Flags().StringVar(&start, "start", "", "First date (YYYY-MM-DD)")
	c.Flags().StringVar(&end, "end", "", "Last date (YYYY-MM-DD); defaults to --start")
	c.Flags().IntVar(&capacity, "capacity", 0, "Max participants per date")
	c.Flags().Int64Var(&price, "price", 0, "Per-participant price override in minor units")
	c.Flags().BoolVar(&clearPrice, "clear-price", false, "Remove the price override")
	c.Flags().BoolVar(&available, "available", true, "Open (true) or close (false) the dates for sale")
	c.Flags().StringVar(&updatedBy, "updated-by", "inventoryctl", "Operator recorded on the slots")
	_ = c.MarkFlagRequired("tour")
	_ = c.MarkFlagRequired("start")

	return c
}
