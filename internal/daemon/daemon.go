// Package daemon owns the connection to the out-of-process fingerprint sensor
// daemon: lazy lookup, callback registration, death handling and the one-way
// commands the overlay sends it.
package daemon

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrServiceNotFound is returned when no daemon answers the lookup.
	ErrServiceNotFound = errors.New("sensor daemon service not found")
	// ErrRemoteUnavailable is returned when a call to a daemon handle fails.
	ErrRemoteUnavailable = errors.New("sensor daemon unavailable")
)

// Callback receives finger events from the daemon. Methods are invoked on a
// goroutine owned by the transport.
type Callback interface {
	FingerDown()
	FingerUp()
}

// Remote is a live handle to the daemon. Every call may fail with
// ErrRemoteUnavailable.
type Remote interface {
	PositionX(ctx context.Context) (int, error)
	PositionY(ctx context.Context) (int, error)
	Size(ctx context.Context) (int, error)
	ShouldBoostBrightness(ctx context.Context) (bool, error)
	DimAmount(ctx context.Context, brightness int) (int, error)

	OnPress(ctx context.Context) error
	OnRelease(ctx context.Context) error
	OnShowFODView(ctx context.Context) error
	OnHideFODView(ctx context.Context) error

	SetCallback(ctx context.Context, cb Callback) error

	// LinkToDeath arms fn to run once when the daemon behind this handle dies.
	LinkToDeath(fn func()) error

	Close() error
}

// Connector looks up the daemon service.
type Connector interface {
	Lookup(ctx context.Context) (Remote, error)
}

// Geometry is the static sensor description reported by the daemon.
type Geometry struct {
	X               int
	Y               int
	Size            int
	BoostBrightness bool
}

// State is the bridge's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}
