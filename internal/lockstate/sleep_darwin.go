//go:build darwin

package lockstate

import (
	"context"

	"github.com/michaelquigley/pfxlog"
	"github.com/prashantgupta24/mac-sleep-notifier/notifier"
)

// WatchSleep maps system sleep to screen-off and wake to the keyguard showing,
// until ctx is done.
func WatchSleep(ctx context.Context, n *Notifier) {
	log := pfxlog.ContextLogger("lockstate")
	sleepCh := notifier.GetInstance().Start()

	for {
		select {
		case <-ctx.Done():
			return
		case activity, ok := <-sleepCh:
			if !ok {
				return
			}
			switch activity.Type {
			case notifier.Sleep:
				log.Info("system sleep detected")
				n.ScreenTurnedOff()
			case notifier.Awake:
				log.Info("system wake detected")
				n.SetKeyguardVisible(true)
			}
		}
	}
}
