package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"

	"github.com/axiom/ucws/internal/database"
	"github.com/axiom/ucws/internal/eventbus"
	"github.com/axiom/ucws/internal/llm"
	"github.com/axiom/ucws/internal/orchestration"
)

var pingTimeout time.Duration

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to every configured backend",
	RunE:  runPing,
}

func init() {
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 10*time.Second, "Overall timeout")
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
	defer cancel()

	out := cmd.OutOrStdout()
	failed := 0
	report := func(name string, configured bool, check func() error) {
		if !configured {
			fmt.Fprintf(out, "%-10s not configured\n", name)
			return
		}
		if err := check(); err != nil {
			failed++
			fmt.Fprintf(out, "%-10s FAIL  %v\n", name, err)
			return
		}
		fmt.Fprintf(out, "%-10s ok\n", name)
	}

	report("postgres", cfg.DatabaseURL != "", func() error {
		db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		var one int
		return db.Pool().QueryRow(ctx, "SELECT 1").Scan(&one)
	})

	report("redis", cfg.RedisURL != "", func() error {
		r, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		return r.Close()
	})

	report("nats", cfg.NATSURL != "", func() error {
		bus, err := eventbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		bus.Close()
		return nil
	})

	report("temporal", cfg.TemporalAddress != "", func() error {
		c, err := orchestration.Dial(cfg.TemporalAddress, cfg.TemporalNamespace)
		if err != nil {
			return err
		}
		defer c.Close()
		_, err = c.CheckHealth(ctx, &client.CheckHealthRequest{})
		return err
	})

	report("ollama", cfg.LLM.Provider == "ollama", func() error {
		return llm.NewOllamaGateway(cfg.LLM.OllamaURL, cfg.LLM.DefaultModel).Ping(ctx)
	})

	if failed > 0 {
		return fmt.Errorf("%d backend(s) unreachable", failed)
	}
	return nil
}
