// Package reload drives lookup table reloads from outside the message path:
// administrative signals, file changes, and a cron schedule.
//
// Every trigger ends in lookup.Ref.Reload, which keeps the previous table
// when a rebuild fails. Trigger failures are logged and never stop the
// trigger loop.
package reload

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"lookupd/internal/logging"
)

// Reloader reloads every table it owns. *lookup.Registry implements it.
type Reloader interface {
	ReloadAll(ctx context.Context) error
}

// Capture starts queueing deliveries of sigs and returns the channel with
// a stop function. Call it before the tables are loaded: a signal that
// arrives during startup is then held for OnNotify instead of taking the
// default action, which for SIGHUP terminates the process.
func Capture(sigs ...os.Signal) (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	return ch, func() { signal.Stop(ch) }
}

// OnNotify reloads r for every value received on ch, until ctx is done or
// ch is closed.
func OnNotify(ctx context.Context, r Reloader, logger *slog.Logger, ch <-chan os.Signal) {
	logger = logging.Default(logger).With("component", "reload")
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			logger.Info("reload of all lookup tables requested", "signal", sig.String())
			if err := r.ReloadAll(ctx); err != nil {
				logger.Warn("some lookup tables kept their previous contents", "error", err)
			}
		}
	}
}
