package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/axiom/ucws/internal/eventbus"
)

var watchContext string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream code request results from NATS as JSON lines",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchContext, "context", "c", "", "Only show results for this request context")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if cfg.NATSURL == "" {
		return fmt.Errorf("NATS_URL is not set")
	}

	bus, err := eventbus.Connect(cfg.NATSURL, logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	enc := json.NewEncoder(cmd.OutOrStdout())
	events := make(chan eventbus.ResultEvent, 64)
	sub, err := bus.Subscribe(watchContext, func(ev eventbus.ResultEvent) {
		events <- ev
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
	}
}
