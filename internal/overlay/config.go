package overlay

import (
	"github.com/phinze/fodcircle/internal/burnin"
	"github.com/phinze/fodcircle/internal/daemon"
)

// Config is the fixed sensor geometry, read once from the daemon.
type Config struct {
	PositionX             int
	PositionY             int
	Size                  int
	ShouldBoostBrightness bool
	NavBarSize            int
	DreamingMaxOffset     int
}

// NewConfig derives the overlay configuration from a daemon geometry reply.
func NewConfig(g daemon.Geometry, navBarSize int) Config {
	return Config{
		PositionX:             g.X,
		PositionY:             g.Y,
		Size:                  g.Size,
		ShouldBoostBrightness: g.BoostBrightness,
		NavBarSize:            navBarSize,
		DreamingMaxOffset:     burnin.MaxOffset(g.Size),
	}
}

// State is the coordinator's view of the world. Bouncer overrides everything:
// while it is set the overlay is never visible.
type State struct {
	Bouncer       bool
	Dreaming      bool
	Keyguard      bool
	Showing       bool
	CircleShowing bool

	DreamingOffsetX int
	DreamingOffsetY int
}
