package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/islandmassage/booking/internal/config"
	"github.com/islandmassage/booking/internal/platform/notification"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued notifications from Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if len(cfg.KafkaBrokers) == 0 {
				return fmt.Errorf("KAFKA_BROKERS is required for the worker")
			}
			logger := newLogger(cfg).With().Str("component", "notification-worker").Logger()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			dispatcher := notification.NewDispatcher(localRouter(logger), logger,
				notification.WithSendTimeout(cfg.NotifyTimeout))
			consumer := notification.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTopic, logger)
			defer consumer.Close()

			logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("worker started")
			err = consumer.Consume(ctx, dispatcher.Deliver)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info().Interface("notifications", dispatcher.Stats()).Msg("worker stopped")
			return nil
		},
	}
}
