// Package shutdown runs cleanup hooks when the process is asked to stop.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/logger"
)

// Hook releases one resource. The context carries the shutdown deadline.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// Handler manages graceful shutdown of the application
type Handler struct {
	mu      sync.Mutex
	hooks   []namedHook
	once    sync.Once
	err     error
	timeout time.Duration
	logger  *logger.Logger
}

func NewHandler(log *logger.Logger, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		timeout: timeout,
		logger:  log.WithComponent("shutdown"),
	}
}

// Register adds a hook. Hooks run in reverse registration order.
func (h *Handler) Register(name string, fn Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, namedHook{name: name, fn: fn})
}

// Wait blocks until SIGINT/SIGTERM, ctx is done, or errc delivers, then runs
// the hooks. A non-nil value from errc is returned joined with hook errors;
// callers filter expected values such as http.ErrServerClosed.
func (h *Handler) Wait(ctx context.Context, errc <-chan error) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cause error
	select {
	case err := <-errc:
		if err != nil {
			h.logger.Errorw("Service failed, shutting down", "error", err)
			cause = err
		}
	case <-sigCtx.Done():
		if ctx.Err() != nil {
			h.logger.Infow("Context cancelled, starting graceful shutdown")
		} else {
			h.logger.Infow("Received signal, starting graceful shutdown")
		}
	}

	return errors.Join(cause, h.Shutdown())
}

// Shutdown runs every hook once, bounded by the handler timeout.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		h.mu.Lock()
		hooks := append([]namedHook(nil), h.hooks...)
		h.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i].fn(ctx); err != nil {
				h.logger.Errorw("Error during shutdown", "hook", hooks[i].name, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, err))
			}
		}
		h.err = errors.Join(errs...)
		if h.err == nil {
			h.logger.Infow("Shutdown complete")
		}
	})
	return h.err
}
