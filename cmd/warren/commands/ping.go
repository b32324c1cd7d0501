package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/config"
	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/pkg/broker"
)

var pingConfigPath string

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check broker connectivity",
	Long:  `Connect to the Redis broker from warren.yml and verify it responds.`,
	RunE:  runPing,
}

func init() {
	pingCmd.Flags().StringVar(&pingConfigPath, "config", "warren.yml", "Path to configuration file")
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := config.Load(pingConfigPath)
	if err != nil {
		return err
	}

	redisOpts, err := redis.ParseURL(cfg.BrokerURL())
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	b, err := broker.New(redisOpts, cfg.Broker.Namespace)
	if err != nil {
		return err
	}
	defer b.Close()

	if err := b.Ping(ctx); err != nil {
		return printer.Error(
			"Broker unreachable",
			fmt.Sprintf("Could not reach Redis at %s: %v", b.URL(), err),
			[]string{"Check broker.url in warren.yml", "Set WARREN_BROKER_URL to override"},
		)
	}

	printer.Success("Broker reachable at %s (namespace: %s)\n", b.URL(), b.Namespace())
	return nil
}
