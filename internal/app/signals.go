package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lowvibe/internal/logging"
)

// ForcedShutdownTimeout is how long a hard cancel may take before the
// process exits anyway.
const ForcedShutdownTimeout = 15 * time.Second

// HandleSignals wires interrupts to the run. The first SIGINT or SIGTERM
// cancels cooperatively at the next checkpoint; the second cancels ctx.
// The returned context is the one to run under; call the cleanup
// function when the run returns.
func (a *App) HandleSignals(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for n := 0; ; n++ {
			select {
			case sig := <-sigChan:
				logging.Info("received signal", "signal", sig, "count", n+1)
				if n == 0 {
					a.control.Cancel()
					if a.handoff != nil {
						a.handoff.Cancel()
					}
					continue
				}
				cancel()
				time.AfterFunc(ForcedShutdownTimeout, func() {
					logging.Warn("forced shutdown due to timeout")
					os.Exit(1)
				})
				return
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		close(done)
		cancel()
	}
}
