// Package metrics exposes counters for the overlay coordinator and the daemon
// bridge.
package metrics

// Recorder receives observability hooks. Implementations must be safe for
// concurrent use.
type Recorder interface {
	IncDaemonCommand(command string, ok bool)
	IncReconnect(ok bool)
	SetDaemonConnected(connected bool)
	IncEvent(kind string)
	IncCircleShown()
	IncJitterApplied()
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncDaemonCommand(string, bool) {}
func (NoopRecorder) IncReconnect(bool)             {}
func (NoopRecorder) SetDaemonConnected(bool)       {}
func (NoopRecorder) IncEvent(string)               {}
func (NoopRecorder) IncCircleShown()               {}
func (NoopRecorder) IncJitterApplied()             {}
