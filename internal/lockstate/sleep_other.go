//go:build !darwin

package lockstate

import (
	"context"

	"github.com/michaelquigley/pfxlog"
)

// WatchSleep is only wired to a system notifier on macOS; elsewhere it waits
// for ctx.
func WatchSleep(ctx context.Context, _ *Notifier) {
	pfxlog.ContextLogger("lockstate").Debug("no sleep notifier on this platform")
	<-ctx.Done()
}
