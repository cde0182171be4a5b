// Package runtime maps process signals to the clients' controls:
// SIGINT/SIGTERM stop the connection, SIGUSR1 saves the recorder log.
package runtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
)

// SetupGracefulShutdown cancels on the first SIGINT or SIGTERM. The returned func releases the handler.
func SetupGracefulShutdown(cancel context.CancelFunc, logger zerolog.Logger) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		select {
		case s := <-sigCh:
			logger.Info().Str("signal", s.String()).Msg("received signal, shutting down")
			cancel()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// OnSaveSignal runs fn for every SIGUSR1 until ctx ends.
func OnSaveSignal(ctx context.Context, fn func(), logger zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	go func() {
		defer signal.Stop(sigCh)
		forward(ctx, sigCh, fn, logger)
	}()
}

func forward(ctx context.Context, sigCh <-chan os.Signal, fn func(), logger zerolog.Logger) {
	for {
		select {
		case s := <-sigCh:
			logger.Info().Str("signal", s.String()).Msg("save requested")
			fn()
		case <-ctx.Done():
			return
		}
	}
}
