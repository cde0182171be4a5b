package runtime

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardRunsFnPerSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal)
	calls := make(chan struct{}, 4)

	done := make(chan struct{})
	go func() {
		forward(ctx, sigCh, func() { calls <- struct{}{} }, zerolog.Nop())
		close(done)
	}()

	sigCh <- syscall.SIGUSR1
	sigCh <- syscall.SIGUSR1
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forward did not return after cancel")
	}
	assert.Len(t, calls, 2)
}

func TestSetupGracefulShutdownCancelsOnSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := SetupGracefulShutdown(cancel, zerolog.Nop())
	defer release()

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, p.Signal(syscall.SIGTERM))

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled")
	}
}

func TestOnSaveSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	saved := make(chan struct{}, 1)
	OnSaveSignal(ctx, func() { saved <- struct{}{} }, zerolog.Nop())

	p, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, p.Signal(syscall.SIGUSR1))

	select {
	case <-saved:
	case <-time.After(2 * time.Second):
		t.Fatal("save was not triggered")
	}
}
