package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/config"
	"github.com/dyluth/warren/internal/demo"
	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/telemetry"
	"github.com/dyluth/warren/pkg/broker"
	"github.com/dyluth/warren/pkg/warren"
)

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo service",
	Long: `Run the demo service described by warren.yml.

The service exposes:
  • RPC methods upper and shout
  • HTTP routes GET /hello, GET /shout and GET /fetch
  • an event handler for the demo.shouted event
  • a queue consumer on demo-work
  • a heartbeat timer

Runs until interrupted, then drains in-flight workers and flushes spans.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "warren.yml", "Path to configuration file")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return printer.Error(
			"Invalid configuration",
			err.Error(),
			[]string{"Run 'warren init' to create a starter warren.yml"},
		)
	}

	redisOpts, err := redis.ParseURL(cfg.BrokerURL())
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	b, err := broker.New(redisOpts, cfg.Broker.Namespace)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer b.Close()
	if err := b.Ping(ctx); err != nil {
		return printer.Error(
			"Broker unreachable",
			fmt.Sprintf("Could not reach Redis at %s: %v", b.URL(), err),
			[]string{"Check broker.url in warren.yml", "Set WARREN_BROKER_URL to override"},
		)
	}

	instrumentor, shutdownTelemetry, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		return err
	}

	d, err := demo.New(ctx, b, instrumentor)
	if err != nil {
		return err
	}
	svc, err := d.Service()
	if err != nil {
		return err
	}

	containerOpts := []warren.ContainerOption{
		warren.WithMaxWorkers(cfg.Service.MaxWorkers),
		warren.WithWorkerHook(instrumentor),
	}
	if addr := cfg.HTTPAddress(); addr != "" {
		containerOpts = append(containerOpts, warren.WithHTTPAddr(addr))
	}
	container := warren.NewContainer(svc, b, containerOpts...)

	if err := container.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	printer.Success("Service %s running (broker: %s)\n", svc.Name(), b.URL())
	if addr := cfg.HTTPAddress(); addr != "" {
		printer.Info("HTTP listening on %s\n", addr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	printer.Info("Received %s, shutting down...\n", sig)

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := container.Stop(stopCtx); err != nil {
		printer.Warning("Shutdown incomplete: %v\n", err)
	}
	if err := d.Close(stopCtx); err != nil {
		printer.Warning("Failed to close clients: %v\n", err)
	}
	if err := shutdownTelemetry(stopCtx); err != nil {
		printer.Warning("Failed to flush telemetry: %v\n", err)
	}

	printer.Success("Service stopped\n")
	return nil
}
