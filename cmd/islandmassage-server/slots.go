package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/islandmassage/booking/internal/config"
	"github.com/islandmassage/booking/internal/domain/availability"
	"github.com/islandmassage/booking/internal/domain/booking"
	"github.com/islandmassage/booking/internal/platform/db"
	"github.com/islandmassage/booking/internal/platform/lock"
)

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Manage therapist availability",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Expand a therapist's weekly patterns into slots",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("therapist")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")

			therapistID, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("--therapist must be a uuid: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			start, err := availability.ParseDate(from, loc)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := availability.ParseDate(to, loc)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := newLogger(cfg)
			svc := availability.NewService(
				availability.NewSlotRepoPG(pool),
				availability.NewPatternRepoPG(pool),
				booking.NewCalendar(booking.NewRepoPG(pool)),
				db.NewTransactor(pool), lock.NewLocal(), loc, logger,
			)

			res, err := svc.GenerateSlots(ctx, therapistID, start, end)
			if err != nil {
				return err
			}
			fmt.Printf("Created %d slot(s) for therapist %s between %s and %s.\n",
				res.CreatedCount, therapistID, from, to)
			return nil
		},
	}
	generateCmd.Flags().String("therapist", "", "Therapist id")
	generateCmd.Flags().String("from", "", "First day (YYYY-MM-DD)")
	generateCmd.Flags().String("to", "", "Last day, inclusive (YYYY-MM-DD)")
	_ = generateCmd.MarkFlagRequired("therapist")
	_ = generateCmd.MarkFlagRequired("from")
	_ = generateCmd.MarkFlagRequired("to")
	cmd.AddCommand(generateCmd)

	return cmd
}
