package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// WithSignals returns a context cancelled by the first SIGINT or SIGTERM.
// Later signals are no longer trapped and terminate the process.
func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Run calls hooks in order under one shared deadline. Every hook runs even
// if an earlier one fails; the failures are joined.
func Run(log *slog.Logger, timeout time.Duration, hooks ...Hook) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, h := range hooks {
		start := time.Now()
		if err := h.Fn(ctx); err != nil {
			log.Error("shutdown step failed", "step", h.Name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
			continue
		}
		log.Info("shutdown step done", "step", h.Name, "took", time.Since(start))
	}
	return errors.Join(errs...)
}
