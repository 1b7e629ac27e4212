/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/orderledger/apiserver/config"
	"github.com/orderledger/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the order event stream",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Subscribe to the event channel and log each event",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.EventBroker == "" {
			return errors.New("EVENT_BROKER must be configured to tail events")
		}

		var backend mq.Backend
		switch cfg.EventBroker {
		case "rabbitmq":
			client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
			if err != nil {
				return fmt.Errorf("init rabbitmq: %w", err)
			}
			backend = client
		case "pubsub":
			client, err := mq.NewPubSubClient(cmd.Context(), cfg.PubSub)
			if err != nil {
				return fmt.Errorf("init pubsub: %w", err)
			}
			backend = client
		}

		broker := mq.New(backend)
		defer broker.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		slog.Info("tailing events", "broker", cfg.EventBroker, "channel", cfg.EventsChannel)
		err := broker.Subscribe(ctx, cfg.EventsChannel, func(ctx context.Context, msg mq.Message) error {
			slog.Info("event", "id", msg.ID, "type", msg.Attributes["type"], "payload", string(msg.Data))
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
