package cli

import (
	"context"
	"fmt"

	"tour-inventory/internal/models"

	"github.com/spf13/cobra"
)

func newTourCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tour",
		Short: "Manage the tour prices the engine reads",
	}
	cmd.AddCommand(newTourSetPriceCmd())
	return cmd
}

func newTourSetPriceCmd() *cobra.Command {
	var (
		tourID string
		name   string
		price  int64
	)

	c := &cobra.Command{
		Use:   "set-price",
		Short: "Create a tour or update its base price",
		RunE: func(cmd *cobra.Command, args []string) error {
			if price < 0 {
				return fmt.Errorf("--price must not be negative")
			}
			if name == "" {
				name = tourID
			}

			ctx := context.Background()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			tour := &models.Tour{ID: tourID, Name: name, BasePrice: price}
			if err := sess.store.UpsertTour(ctx, tour); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), tour)
		},
	}

	c.Flags().StringVar(&tourID, "tour", "", "Tour ID")
	c.Flags().StringVar(&name, "name", "", "Display name; defaults to the ID")
	c.Flags().Int64Var(&price, "price", 0, "Base price per participant in minor units")
	_ = c.MarkFlagRequired("tour")
	_ = c.MarkFlagRequired("price")

	return c
}
