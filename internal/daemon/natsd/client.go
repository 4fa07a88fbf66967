package natsd

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/michaelquigley/pfxlog"
	"github.com/nats-io/nats.go"
	"github.com/phinze/fodcircle/internal/daemon"
	"github.com/pkg/errors"
)

// Connector looks the daemon up on a NATS connection.
type Connector struct {
	nc     *nats.Conn
	prefix string
	clock  clockwork.Clock
}

// NewConnector creates a connector for the daemon serving under prefix.
func NewConnector(nc *nats.Conn, prefix string, clock clockwork.Clock) *Connector {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Connector{nc: nc, prefix: prefix, clock: clock}
}

// Lookup pings the daemon and returns a handle watched for death.
func (c *Connector) Lookup(ctx context.Context) (daemon.Remote, error) {
	msg, err := c.nc.RequestWithContext(ctx, Subject(c.prefix, methodHello), nil)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, errors.Wrap(daemon.ErrServiceNotFound, c.prefix)
		}
		return nil, errors.Wrapf(daemon.ErrRemoteUnavailable, "hello: %v", err)
	}
	if _, err := decodeReply(msg.Data); err != nil {
		return nil, err
	}

	r := &remote{nc: c.nc, prefix: c.prefix}
	r.watchdog = newWatchdog(c.clock, HeartbeatInterval, heartbeatMisses, c.nc.IsClosed, r.died)

	r.heartbeatSub, err = c.nc.Subscribe(Subject(c.prefix, methodHeartbeat), func(*nats.Msg) {
		r.watchdog.beat()
	})
	if err != nil {
		return nil, errors.Wrapf(daemon.ErrRemoteUnavailable, "subscribe heartbeat: %v", err)
	}
	r.watchdog.start()

	return r, nil
}

type remote struct {
	nc       *nats.Conn
	prefix   string
	watchdog *watchdog

	mu           sync.Mutex
	death        func()
	dead         bool
	callbackSub  *nats.Subscription
	heartbeatSub *nats.Subscription
}

func (r *remote) died(reason string) {
	r.mu.Lock()
	r.dead = true
	fn := r.death
	r.mu.Unlock()

	pfxlog.ContextLogger("natsd").WithField("reason", reason).Info("daemon death detected")
	if fn != nil {
		fn()
	}
}

func (r *remote) call(ctx context.Context, method string, req request) (reply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return reply{}, errors.Wrap(err, "encode request")
	}

	msg, err := r.nc.RequestWithContext(ctx, Subject(r.prefix, method), data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, nats.ErrConnectionClosed) {
			r.watchdog.dead(err.Error())
		}
		return reply{}, errors.Wrapf(daemon.ErrRemoteUnavailable, "%s: %v", method, err)
	}
	return decodeReply(msg.Data)
}

func (r *remote) send(method string) error {
	if err := r.nc.Publish(Subject(r.prefix, method), nil); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			r.watchdog.dead(err.Error())
		}
		return errors.Wrapf(daemon.ErrRemoteUnavailable, "%s: %v", method, err)
	}
	return nil
}

func (r *remote) PositionX(ctx context.Context) (int, error) {
	rep, err := r.call(ctx, methodPositionX, request{})
	return rep.Value, err
}

func (r *remote) PositionY(ctx context.Context) (int, error) {
	rep, err := r.call(ctx, methodPositionY, request{})
	return rep.Value, err
}

func (r *remote) Size(ctx context.Context) (int, error) {
	rep, err := r.call(ctx, methodSize, request{})
	return rep.Value, err
}

func (r *remote) ShouldBoostBrightness(ctx context.Context) (bool, error) {
	rep, err := r.call(ctx, methodShouldBoostBrightness, request{})
	return rep.Flag, err
}

func (r *remote) DimAmount(ctx context.Context, brightness int) (int, error) {
	rep, err := r.call(ctx, methodDimAmount, request{Brightness: brightness})
	return rep.Value, err
}

func (r *remote) OnPress(context.Context) error       { return r.send(methodPress) }
func (r *remote) OnRelease(context.Context) error     { return r.send(methodRelease) }
func (r *remote) OnShowFODView(context.Context) error { return r.send(methodShow) }
func (r *remote) OnHideFODView(context.Context) error { return r.send(methodHide) }

func (r *remote) SetCallback(_ context.Context, cb daemon.Callback) error {
	sub, err := r.nc.Subscribe(Subject(r.prefix, methodCallback), func(m *nats.Msg) {
		if !dispatchCallback(cb, m.Data) {
			pfxlog.ContextLogger("natsd").Debugf("ignoring unknown callback %q", string(m.Data))
		}
	})
	if err != nil {
		return errors.Wrapf(daemon.ErrRemoteUnavailable, "subscribe callback: %v", err)
	}

	r.mu.Lock()
	old := r.callbackSub
	r.callbackSub = sub
	r.mu.Unlock()

	if old != nil {
		_ = old.Unsubscribe()
	}
	return nil
}

func (r *remote) LinkToDeath(fn func()) error {
	r.mu.Lock()
	if r.dead {
		r.mu.Unlock()
		return errors.Wrap(daemon.ErrRemoteUnavailable, "daemon already dead")
	}
	r.death = fn
	r.mu.Unlock()
	return nil
}

func (r *remote) Close() error {
	r.watchdog.disarm()

	r.mu.Lock()
	subs := []*nats.Subscription{r.callbackSub, r.heartbeatSub}
	r.callbackSub, r.heartbeatSub = nil, nil
	r.mu.Unlock()

	for _, sub := range subs {
		if sub != nil {
			_ = sub.Unsubscribe()
		}
	}
	return nil
}
