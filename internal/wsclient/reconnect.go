package wsclient

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Handler consumes a registered session until it fails or ctx ends.
type Handler func(ctx context.Context, s Session) error

type ConnectFunc func(ctx context.Context) (Session, error)

// Reconnector keeps a session alive: connect, serve, wait a fixed delay, repeat.
// There is no backoff and no retry limit; Run only returns once ctx is cancelled.
type Reconnector struct {
	Connect ConnectFunc
	Delay   time.Duration
	Logger  zerolog.Logger

	// OnRetry is called before each wait. Optional.
	OnRetry func(err error)

	wait func(ctx context.Context, d time.Duration) bool
}

func (r *Reconnector) Run(ctx context.Context, h Handler) error {
	wait := r.wait
	if wait == nil {
		wait = sleepCtx
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s, err := r.Connect(ctx)
		if err != nil {
			r.Logger.Error().Err(err).Dur("retry_in", r.Delay).Msg("ws connect error")
		} else {
			err = h(ctx, s)
			_ = s.Close()
			if ctx.Err() != nil {
				r.Logger.Info().Msg("context cancelled, leaving reconnect loop")
				return ctx.Err()
			}
			r.Logger.Warn().Err(err).Dur("retry_in", r.Delay).Msg("ws connection lost")
		}

		if r.OnRetry != nil {
			r.OnRetry(err)
		}
		if !wait(ctx, r.Delay) {
			r.Logger.Info().Msg("context cancelled before ws reconnect")
			return ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
