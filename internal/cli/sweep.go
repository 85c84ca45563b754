package cli

import (
	"context"
	"fmt"
	"time"

	"tour-inventory/internal/clock"
	"tour-inventory/internal/service"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	var at string

	c := &cobra.Command{
		Use:   "sweep",
		Short: "Expire every lapsed hold once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			now := time.Now().UTC()
			if at != "" {
				now, err = time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at (want RFC3339): %w", err)
				}
			}

			manager := service.NewReservationManager(sess.store, clock.NewManual(now),
				service.WithSweepBatchSize(sess.cfg.Business.SweepBatchSize),
				service.WithReservationEvents(sess.publisher),
				service.WithReservationCache(sess.cache))
			expired, err := manager.Sweep(ctx, now)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "expired %d reservation(s)\n", len(expired))
			for _, r := range expired {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s booking=%s tour=%s date=%s participants=%d\n",
					r.ID, r.BookingID, r.TourID, r.Date, r.Participants)
			}
			return nil
		},
	}

	c.Flags().StringVar(&at, "at", "", "Sweep as of this instant (RFC3339); defaults to now")
	return c
}
