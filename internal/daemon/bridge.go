package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/michaelquigley/pfxlog"
	"github.com/phinze/fodcircle/internal/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultCallTimeout = 2 * time.Second

// Bridge holds at most one live Remote and re-acquires it lazily after the
// daemon dies. It is safe for concurrent use.
type Bridge struct {
	connector   Connector
	callTimeout time.Duration
	recorder    metrics.Recorder
	log         *logrus.Entry

	// connMu serializes lookups; mu guards the fields below it.
	connMu     sync.Mutex
	mu         sync.Mutex
	state      State
	remote     Remote
	callback   Callback
	generation uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithCallTimeout bounds every remote call.
func WithCallTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.callTimeout = d
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Bridge) {
		if r != nil {
			b.recorder = r
		}
	}
}

// NewBridge creates a disconnected bridge. Nothing is looked up until the
// first call that needs a handle.
func NewBridge(connector Connector, opts ...Option) *Bridge {
	b := &Bridge{
		connector:   connector,
		callTimeout: defaultCallTimeout,
		recorder:    metrics.NoopRecorder{},
		log:         pfxlog.ContextLogger("daemon").Entry,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current connection state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetCallback sets the sink for finger events. It is registered on every
// handle the bridge acquires, including the current one.
func (b *Bridge) SetCallback(ctx context.Context, cb Callback) {
	b.mu.Lock()
	b.callback = cb
	remote := b.remote
	b.mu.Unlock()

	if remote == nil || cb == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	if err := remote.SetCallback(callCtx, cb); err != nil {
		b.log.WithError(err).Debug("unable to register callback on live handle")
	}
}

// Connect returns the live handle, looking the daemon up once if there is none.
func (b *Bridge) Connect(ctx context.Context) (Remote, error) {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	b.mu.Lock()
	if b.state == Connected {
		remote := b.remote
		b.mu.Unlock()
		return remote, nil
	}
	b.state = Connecting
	b.generation++
	gen := b.generation
	cb := b.callback
	b.mu.Unlock()

	remote, err := b.acquire(ctx, gen, cb)
	if err != nil {
		b.mu.Lock()
		if b.generation == gen {
			b.state = Disconnected
		}
		b.mu.Unlock()
		b.recorder.IncReconnect(false)
		return nil, err
	}

	b.mu.Lock()
	if b.generation != gen || b.state != Connecting {
		// died while we were registering
		b.mu.Unlock()
		_ = remote.Close()
		b.recorder.IncReconnect(false)
		return nil, errors.Wrap(ErrRemoteUnavailable, "daemon died during connect")
	}
	b.state = Connected
	b.remote = remote
	b.mu.Unlock()

	b.recorder.IncReconnect(true)
	b.recorder.SetDaemonConnected(true)
	b.log.Info("connected to sensor daemon")
	return remote, nil
}

func (b *Bridge) acquire(ctx context.Context, gen uint64, cb Callback) (Remote, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	remote, err := b.connector.Lookup(callCtx)
	if err != nil {
		return nil, errors.Wrap(err, "lookup sensor daemon")
	}
	if remote == nil {
		return nil, errors.WithStack(ErrServiceNotFound)
	}

	if cb != nil {
		if err := remote.SetCallback(callCtx, cb); err != nil {
			_ = remote.Close()
			return nil, errors.Wrap(err, "register daemon callback")
		}
	}

	if err := remote.LinkToDeath(func() { b.handleDeath(gen) }); err != nil {
		_ = remote.Close()
		return nil, errors.Wrap(err, "link to daemon death")
	}

	return remote, nil
}

func (b *Bridge) handleDeath(gen uint64) {
	b.mu.Lock()
	if b.generation != gen || b.state == Disconnected {
		b.mu.Unlock()
		return
	}
	b.state = Disconnected
	remote := b.remote
	b.remote = nil
	b.mu.Unlock()

	if remote != nil {
		_ = remote.Close()
	}
	b.recorder.SetDaemonConnected(false)
	b.log.Warn("sensor daemon died, handle invalidated")
}

// QueryGeometry reads the sensor position, size and brightness boost flag.
func (b *Bridge) QueryGeometry(ctx context.Context) (Geometry, error) {
	remote, err := b.Connect(ctx)
	if err != nil {
		return Geometry{}, errors.Wrap(err, "query geometry")
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	var g Geometry
	if g.BoostBrightness, err = remote.ShouldBoostBrightness(callCtx); err != nil {
		return Geometry{}, errors.Wrap(err, "shouldBoostBrightness")
	}
	if g.X, err = remote.PositionX(callCtx); err != nil {
		return Geometry{}, errors.Wrap(err, "getPositionX")
	}
	if g.Y, err = remote.PositionY(callCtx); err != nil {
		return Geometry{}, errors.Wrap(err, "getPositionY")
	}
	if g.Size, err = remote.Size(callCtx); err != nil {
		return Geometry{}, errors.Wrap(err, "getSize")
	}
	return g, nil
}

// DimAmount asks the daemon how much to dim the screen (0-255) at the given
// brightness.
func (b *Bridge) DimAmount(ctx context.Context, brightness int) (int, error) {
	remote, err := b.Connect(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "dim amount")
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	amount, err := remote.DimAmount(callCtx, brightness)
	if err != nil {
		return 0, errors.Wrap(err, "getDimAmount")
	}
	return amount, nil
}

// NotifyPress tells the daemon the overlay is being pressed.
func (b *Bridge) NotifyPress(ctx context.Context) bool {
	return b.dispatch(ctx, "press", Remote.OnPress)
}

// NotifyRelease tells the daemon the press ended.
func (b *Bridge) NotifyRelease(ctx context.Context) bool {
	return b.dispatch(ctx, "release", Remote.OnRelease)
}

// NotifyShow tells the daemon the overlay became visible.
func (b *Bridge) NotifyShow(ctx context.Context) bool {
	return b.dispatch(ctx, "show", Remote.OnShowFODView)
}

// NotifyHide tells the daemon the overlay was hidden.
func (b *Bridge) NotifyHide(ctx context.Context) bool {
	return b.dispatch(ctx, "hide", Remote.OnHideFODView)
}

// dispatch is best effort: failures are logged and dropped, the next state
// transition is the retry. It reports whether the daemon took the command.
func (b *Bridge) dispatch(ctx context.Context, name string, call func(Remote, context.Context) error) bool {
	log := b.log.WithField("command", name)

	remote, err := b.Connect(ctx)
	if err != nil {
		log.WithError(err).Debug("dropping command, daemon unavailable")
		b.recorder.IncDaemonCommand(name, false)
		return false
	}

	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	if err := call(remote, callCtx); err != nil {
		log.WithError(err).Debug("daemon command failed")
		b.recorder.IncDaemonCommand(name, false)
		return false
	}
	b.recorder.IncDaemonCommand(name, true)
	return true
}

// Close releases the live handle, if any.
func (b *Bridge) Close() error {
	b.mu.Lock()
	remote := b.remote
	b.remote = nil
	b.state = Disconnected
	b.generation++
	b.mu.Unlock()

	if remote == nil {
		return nil
	}
	b.recorder.SetDaemonConnected(false)
	return remote.Close()
}
