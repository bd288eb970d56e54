package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/logger"
)

func TestShutdown_ReverseOrderOnce(t *testing.T) {
	h := NewHandler(logger.NewNop(), time.Second)

	var order []string
	for _, name := range []string{"telemetry", "server"} {
		name := name
		h.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, h.Shutdown())
	require.NoError(t, h.Shutdown())
	assert.Equal(t, []string{"server", "telemetry"}, order)
}

func TestShutdown_HookErrors(t *testing.T) {
	h := NewHandler(logger.NewNop(), time.Second)
	boom := errors.New("boom")

	ran := false
	h.Register("first", func(ctx context.Context) error { ran = true; return nil })
	h.Register("second", func(ctx context.Context) error { return boom })

	err := h.Shutdown()
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "second")
	assert.True(t, ran, "a failing hook does not stop the others")
}

func TestShutdown_HookDeadline(t *testing.T) {
	h := NewHandler(logger.NewNop(), 50*time.Millisecond)
	h.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	assert.ErrorIs(t, h.Shutdown(), context.DeadlineExceeded)
}

func TestWait(t *testing.T) {
	t.Run("context cancelled", func(t *testing.T) {
		h := NewHandler(logger.NewNop(), time.Second)
		called := false
		h.Register("hook", func(ctx context.Context) error { called = true; return nil })

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.NoError(t, h.Wait(ctx, nil))
		assert.True(t, called)
	})

	t.Run("service error", func(t *testing.T) {
		h := NewHandler(logger.NewNop(), time.Second)
		called := false
		h.Register("hook", func(ctx context.Context) error { called = true; return nil })

		errc := make(chan error, 1)
		errc <- errors.New("listen failed")

		err := h.Wait(context.Background(), errc)
		assert.ErrorContains(t, err, "listen failed")
		assert.True(t, called)
	})
}
