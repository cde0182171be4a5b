package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lucaslui/hems/gait-processor/internal/config"
	"github.com/lucaslui/hems/gait-processor/internal/datalog"
	"github.com/lucaslui/hems/gait-processor/internal/metrics"
	"github.com/lucaslui/hems/gait-processor/internal/objectstore"
	"github.com/lucaslui/hems/gait-processor/internal/recording"
	"github.com/lucaslui/hems/gait-processor/internal/runtime"
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
		Use:   "recorder",
		Short: "Logs gait sensor readings, echoes them and saves the log to a spreadsheet file",
		Long: `Connects once to the relay and registers as a processor.
Send SIGUSR1 to save the log now; SIGINT or SIGTERM stops the connection and saves.`,
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
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	config.AddFlags(cmd.Flags())
	cmd.AddCommand(config.VersionCmd("recorder", version))
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	logger := config.NewLogger("recorder", cfg.Log.Level, cfg.Log.Format, os.Stderr)
	logger.Debug().Msgf("effective configuration:%s", cfg.String())

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	release := runtime.SetupGracefulShutdown(cancel, logger)
	defer release()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	saver := &datalog.Saver{
		Dir:         cfg.Recorder.OutputDir,
		Format:      cfg.Recorder.Format,
		Compression: cfg.Recorder.ParquetCompression,
		Logger:      logger,
	}
	if cfg.S3.Enabled() {
		client, err := objectstore.NewMinIO(cfg.S3)
		if err != nil {
			return err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return err
		}
		saver.Uploader = client
		logger.Info().Str("endpoint", cfg.S3.Endpoint).Str("bucket", cfg.S3.Bucket).Msg("object storage ready")
	}

	rec := recording.NewRecorder(datalog.New(), os.Stdout, recording.Options{
		Tail:        cfg.Recorder.Tail,
		ClearScreen: cfg.Recorder.ClearScreen,
	}, m, logger)

	runtime.OnSaveSignal(ctx, func() { _, _ = rec.Save(ctx, saver) }, logger)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Addr, reg, logger) })
	}
	g.Go(func() error {
		s, err := wsclient.Connect(gctx, wsclient.Options{
			URL:              cfg.WS.URL,
			Role:             cfg.WS.Role,
			HandshakeTimeout: cfg.WS.HandshakeTimeout,
			WriteTimeout:     cfg.WS.WriteTimeout,
		}, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		return rec.Serve(gctx, s)
	})

	loopErr := g.Wait()
	if loopErr != nil && !errors.Is(loopErr, context.Canceled) {
		logger.Error().Err(loopErr).Msg("connection ended")
	}

	// Saved on every exit path. An empty log is not a failure.
	if _, err := rec.Save(context.Background(), saver); err != nil && !errors.Is(err, datalog.ErrEmptyLog) {
		return err
	}
	logger.Info().Msg("recorder stopped")
	return nil
}
