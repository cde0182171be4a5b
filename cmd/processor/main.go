package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lucaslui/hems/gait-processor/internal/broker"
	"github.com/lucaslui/hems/gait-processor/internal/config"
	"github.com/lucaslui/hems/gait-processor/internal/metrics"
	"github.com/lucaslui/hems/gait-processor/internal/processing"
	"github.com/lucaslui/hems/gait-processor/internal/runtime"
	"github.com/lucaslui/hems/gait-processor/internal/storage"
	"github.com/lucaslui/hems/gait-processor/internal/wsclient"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "processor",
		Short:         "Stores gait sensor readings with summary stats and acknowledges them to the relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.NewViper(cfgFile)
			if err != nil {
				return err
			}
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.LoadProcessor(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	config.AddFlags(cmd.Flags())
	cmd.AddCommand(config.VersionCmd("processor", version))
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	logger := config.NewLogger("processor", cfg.Log.Level, cfg.Log.Format, os.Stdout)
	logger.Debug().Msgf("effective configuration:%s", cfg.String())

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	release := runtime.SetupGracefulShutdown(cancel, logger)
	defer release()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	stores, dlq, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	fanout := storage.NewFanout(stores...)
	defer func() {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelClose()
		if err := fanout.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("store close error")
		}
	}()

	proc := processing.NewProcessor(fanout, dlq, m, logger)
	opts := wsOptions(cfg.WS)
	rc := &wsclient.Reconnector{
		Connect: func(ctx context.Context) (wsclient.Session, error) {
			return wsclient.Connect(ctx, opts, logger)
		},
		Delay:   cfg.WS.ReconnectDelay,
		Logger:  logger,
		OnRetry: func(error) { m.Reconnect() },
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Addr, reg, logger) })
	}
	g.Go(func() error { return rc.Run(gctx, proc.Serve) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("processor stopped")
		return nil
	}
	return err
}

// buildStores connects every configured sink. Mongo is always present.
func buildStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) ([]storage.Store, processing.DeadLetterSink, error) {
	var (
		stores []storage.Store
		dlq    processing.DeadLetterSink
	)
	fail := func(err error) ([]storage.Store, processing.DeadLetterSink, error) {
		for _, s := range stores {
			_ = s.Close(context.Background())
		}
		return nil, nil, err
	}

	mongoStore, err := storage.NewMongoStore(ctx, cfg.Mongo)
	if err != nil {
		return fail(err)
	}
	stores = append(stores, mongoStore)
	logger.Info().Str("database", cfg.Mongo.Database).Str("collection", cfg.Mongo.Collection).Msg("mongo store ready")

	if cfg.Influx.Enabled() {
		stores = append(stores, storage.NewInfluxStore(cfg.Influx))
		logger.Info().Str("url", cfg.Influx.URL).Str("bucket", cfg.Influx.Bucket).Msg("influx store ready")
	}

	if cfg.Redis.Enabled() {
		rs, err := storage.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return fail(err)
		}
		stores = append(stores, rs)
		logger.Info().Str("addr", cfg.Redis.Addr).Str("key", cfg.Redis.Key).Msg("redis store ready")
	}

	if cfg.Kafka.Enabled() {
		if err := broker.EnsureKafkaTopics(ctx, cfg.Kafka, logger); err != nil {
			return fail(errors.Wrap(err, "kafka ensure topics"))
		}
		kp := broker.NewKafkaPublisher(cfg.Kafka)
		stores = append(stores, kp)
		dlq = kp
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka publisher ready")
	}

	if cfg.MQTT.Enabled() {
		client := broker.BuildMQTTClient(cfg.MQTT, logger)
		if err := broker.ConnectWithBackoff(ctx, client, logger, 2*time.Second, 30*time.Second); err != nil {
			return fail(err)
		}
		stores = append(stores, broker.NewMQTTPublisher(client, cfg.MQTT))
		logger.Info().Str("topic", cfg.MQTT.Topic).Msg("mqtt publisher ready")
	}

	return stores, dlq, nil
}

func wsOptions(c config.WSConfig) wsclient.Options {
	return wsclient.Options{
		URL:              c.URL,
		Role:             c.Role,
		HandshakeTimeout: c.HandshakeTimeout,
		WriteTimeout:     c.WriteTimeout,
	}
}
