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
	"github.com/dyluth/warren/pkg/warren/rpc"
)

var queuesConfigPath string

var queuesCmd = &cobra.Command{
	Use:   "queues [queue...]",
	Short: "Show queue depths",
	Long: `Show the number of pending messages on the named queues.

With no arguments, shows every queue declared in the broker namespace,
falling back to the demo service's queues when none are declared yet.`,
	RunE: runQueues,
}

func init() {
	queuesCmd.Flags().StringVar(&queuesConfigPath, "config", "warren.yml", "Path to configuration file")
	rootCmd.AddCommand(queuesCmd)
}

func runQueues(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := config.Load(queuesConfigPath)
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

	queues := args
	if len(queues) == 0 {
		queues, err = b.DeclaredQueues(ctx)
		if err != nil {
			return err
		}
	}
	if len(queues) == 0 {
		queues = []string{rpc.QueueName(cfg.Service.Name), "demo-work"}
	}

	for _, queue := range queues {
		length, err := b.QueueLength(ctx, queue)
		if err != nil {
			return fmt.Errorf("failed to read queue %s: %w", queue, err)
		}
		printer.Printf("%-40s %d\n", queue, length)
	}

	return nil
}
