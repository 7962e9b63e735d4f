package main

import (
	"github.com/spf13/cobra"

	"arcpay/apps/arcpay/internal/config"
	"arcpay/apps/arcpay/internal/events"
	"arcpay/apps/arcpay/internal/execution_watcher"
)

func init() {
	var owner, group string

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream execution events from Kafka as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			consumer, err := execution_watcher.NewKafkaConsumer(cfg.KafkaBroker, group)
			if err != nil {
				return err
			}

			w := execution_watcher.New(consumer, cfg.KafkaTopic, owner, func(e events.ExecutionEvent) error {
				return printJSON(e)
			}, logger)
			defer w.Close()

			return w.Run(cmd.Context())
		},
	}
	watchCmd.Flags().StringVar(&owner, "owner", "", "Only show this owner's executions")
	watchCmd.Flags().StringVar(&group, "group", "arcpay-watch", "Kafka consumer group")
	rootCmd.AddCommand(watchCmd)
}
