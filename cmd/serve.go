package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/sandbooking/console/config"
	"example.com/sandbooking/console/internal/api"
	"example.com/sandbooking/console/internal/console"
	"example.com/sandbooking/console/internal/gateway"
	"example.com/sandbooking/console/internal/metrics"
	"example.com/sandbooking/console/internal/tracing"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the console service",
	Long:  `Start the HTTP server for the operator UI together with the delivery slot rollover job`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
	}

	// Initialize the Gateway client and the console service
	gatewayClient := gateway.NewClient(cfg.Gateway, metricsCollector)
	svc := console.NewService(gatewayClient, metricsCollector, cfg)
	svc.Warmup(ctx)

	// Initialize the server
	server := api.NewServer(cfg, svc, metricsCollector, tracer)

	// Start the HTTP server
	g.Go(func() error {
		return server.Start()
	})

	// Start the slot rollover job: the slot window is regenerated only when
	// the civil date changes, checked once a minute
	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(time.Minute),
			gocron.NewTask(func() {
				if svc.RolloverSlots(time.Now()) {
					log.Info().Msg("Delivery slot window rolled over")
				}
			}),
		)
		if err != nil {
			return err
		}

		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	// Wait for termination signal
	<-ctx.Done()

	// Shutdown the server and drain in-flight fetches
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	svc.Shutdown()
	tracer.Close()

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Console service error")
		return err
	}

	log.Info().Msg("Console service shut down")
	return nil
}
