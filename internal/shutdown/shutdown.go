package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
)

// Watcher cancels a context when the process receives an interrupt, so an
// in-flight backend call unwinds and its handle is still closed.
type Watcher struct {
	logger zerolog.Logger
	cancel context.CancelFunc
	quit   chan os.Signal
	done   chan struct{}

	triggerOnce sync.Once
	stopOnce    sync.Once
}

// Watch returns a context derived from parent that is cancelled on SIGINT,
// SIGTERM or Trigger. Stop must be called to release the signal handler.
func Watch(parent context.Context, logger zerolog.Logger) (context.Context, *Watcher) {
	ctx, cancel := context.WithCancel(parent)
	w := &Watcher{
		logger: logger.With().Str("component", "shutdown").Logger(),
		cancel: cancel,
		quit:   make(chan os.Signal, 1),
		done:   make(chan struct{}),
	}
	signal.Notify(w.quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-w.quit:
			w.logger.Warn().
				Str("signal", sig.String()).
				Msg("Received shutdown signal, cancelling operation")
			w.Trigger()
		case <-w.done:
		case <-ctx.Done():
		}
	}()
	return ctx, w
}

// Trigger cancels the watched context. Safe to call concurrently.
func (w *Watcher) Trigger() {
	w.triggerOnce.Do(func() {
		w.cancel()
	})
}

// Stop releases the signal handler and cancels the context
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		signal.Stop(w.quit)
		close(w.done)
		w.cancel()
	})
}
