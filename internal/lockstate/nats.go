package lockstate

import (
	"strconv"
	"strings"

	"github.com/michaelquigley/pfxlog"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Event names carried as the last subject token under <prefix>.lockstate.
const (
	EventDreaming  = "dreaming"
	EventKeyguard  = "keyguard"
	EventBouncer   = "bouncer"
	EventScreenOff = "screenoff"
	EventDetecting = "detecting"
)

// Subject returns the subject an event is published on.
func Subject(prefix, event string) string {
	return prefix + ".lockstate." + event
}

// SubscribeNATS feeds lock-state messages published under prefix into n.
// Payloads are "true" or "false"; screenoff ignores its payload.
func SubscribeNATS(nc *nats.Conn, prefix string, n *Notifier) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(Subject(prefix, ">"), func(m *nats.Msg) {
		event := m.Subject[strings.LastIndex(m.Subject, ".")+1:]
		if err := Apply(n, event, string(m.Data)); err != nil {
			pfxlog.ContextLogger("lockstate").WithError(err).WithField("subject", m.Subject).Warn("ignoring lock-state message")
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "subscribe lock-state")
	}
	return sub, nil
}

// Apply publishes one named event on n.
func Apply(n *Notifier, event, payload string) error {
	if event == EventScreenOff {
		n.ScreenTurnedOff()
		return nil
	}

	value, err := strconv.ParseBool(strings.TrimSpace(payload))
	if err != nil {
		return errors.Wrapf(err, "%s payload", event)
	}

	switch event {
	case EventDreaming:
		n.SetDreaming(value)
	case EventKeyguard:
		n.SetKeyguardVisible(value)
	case EventBouncer:
		n.SetBouncer(value)
	case EventDetecting:
		n.SetFingerprintDetectionRunning(value)
	default:
		return errors.Errorf("unknown lock-state event %q", event)
	}
	return nil
}
