package overlay

import "github.com/phinze/fodcircle/internal/surface"

// event is anything the coordinator loop applies. Every input, whatever
// goroutine it arrives on, becomes one of these.
type event interface {
	kind() string
}

type keyguardEvent struct{ showing bool }
type dreamingEvent struct{ dreaming bool }
type bouncerEvent struct{ bouncer bool }
type screenOffEvent struct{}
type fingerDownEvent struct{}
type fingerUpEvent struct{}
type touchEvent struct{ phase surface.TouchPhase }
type jitterEvent struct{ x, y int }
type configChangedEvent struct{}
type showEvent struct{}
type hideEvent struct{}
type flushEvent struct{ done chan struct{} }

func (keyguardEvent) kind() string      { return "keyguard" }
func (dreamingEvent) kind() string      { return "dreaming" }
func (bouncerEvent) kind() string       { return "bouncer" }
func (screenOffEvent) kind() string     { return "screen_off" }
func (fingerDownEvent) kind() string    { return "finger_down" }
func (fingerUpEvent) kind() string      { return "finger_up" }
func (touchEvent) kind() string         { return "touch" }
func (jitterEvent) kind() string        { return "jitter" }
func (configChangedEvent) kind() string { return "config_changed" }
func (showEvent) kind() string          { return "show" }
func (hideEvent) kind() string          { return "hide" }
func (flushEvent) kind() string         { return "flush" }
