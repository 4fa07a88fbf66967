// Command fodsim stands in for the vendor fingerprint daemon. It answers the
// sensor queries over NATS, echoes overlay presses back as finger events and
// can publish a locked-screen scenario for the overlay to react to.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/michaelquigley/pfxlog"
	"github.com/nats-io/nats.go"
	"github.com/phinze/fodcircle/internal/daemon/natsd"
	"github.com/phinze/fodcircle/internal/lockstate"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

var cli struct {
	NATSURL   string        `name:"nats-url" default:"nats://127.0.0.1:4222" env:"FOD_NATS_URL" help:"NATS server URL"`
	Subject   string        `default:"fod.inscreen" env:"FOD_DAEMON_SUBJECT" help:"Daemon subject prefix"`
	X         int           `default:"445" help:"Sensor centre x"`
	Y         int           `default:"1910" help:"Sensor centre y"`
	Size      int           `default:"190" help:"Sensor diameter"`
	Boost     bool          `help:"Ask the overlay to raise brightness while pressed"`
	Locked    bool          `help:"Publish a locked screen with fingerprint detection running"`
	DreamIn   time.Duration `help:"Start dreaming this long after startup (0 disables)"`
	EchoDelay time.Duration `default:"80ms" help:"Delay before echoing a press as a finger event"`
	Verbose   bool          `short:"v" help:"Enable debug logging"`
}

// sensor is a fake panel. Everything it is told is counted and logged.
type sensor struct {
	x, y, size int
	boost      bool
	echo       func(down bool)

	presses  *atomic.Int64
	releases *atomic.Int64
	showing  *atomic.Bool
	log      *logrus.Entry
}

func (s *sensor) PositionX() int              { return s.x }
func (s *sensor) PositionY() int              { return s.y }
func (s *sensor) Size() int                   { return s.size }
func (s *sensor) ShouldBoostBrightness() bool { return s.boost }

// DimAmount darkens more the dimmer the panel already is, like the vendor
// curves do.
func (s *sensor) DimAmount(brightness int) int {
	if brightness < 0 {
		brightness = 0
	}
	if brightness > 255 {
		brightness = 255
	}
	return 255 - brightness
}

func (s *sensor) OnPress() {
	n := s.presses.Inc()
	s.log.WithField("presses", n).Info("overlay pressed")
	s.echo(true)
}

func (s *sensor) OnRelease() {
	n := s.releases.Inc()
	s.log.WithField("releases", n).Info("overlay released")
	s.echo(false)
}

func (s *sensor) OnShowFODView() {
	s.showing.Store(true)
	s.log.Info("overlay shown")
}

func (s *sensor) OnHideFODView() {
	s.showing.Store(false)
	s.log.Info("overlay hidden")
}

func main() {
	kong.Parse(&cli,
		kong.Name("fodsim"),
		kong.Description("Simulated fingerprint-on-display daemon"),
	)

	level := logrus.InfoLevel
	if cli.Verbose {
		level = logrus.DebugLevel
	}
	pfxlog.GlobalInit(level, pfxlog.DefaultOptions())

	if err := run(); err != nil {
		pfxlog.Logger().WithError(err).Fatal("fodsim failed")
	}
}

func run() error {
	log := pfxlog.ContextLogger("fodsim").WithField("instance", uuid.NewString())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	nc, err := nats.Connect(cli.NATSURL, nats.Name("fodsim"), nats.MaxReconnects(-1))
	if err != nil {
		return errors.Wrap(err, "connect to nats")
	}
	defer nc.Close()

	g, gctx := errgroup.WithContext(ctx)
	echoes := make(chan bool, 8)

	s := &sensor{
		x:     cli.X,
		y:     cli.Y,
		size:  cli.Size,
		boost: cli.Boost,
		echo: func(down bool) {
			select {
			case echoes <- down:
			default:
				log.Warn("echo queue full, dropping finger event")
			}
		},
		presses:  atomic.NewInt64(0),
		releases: atomic.NewInt64(0),
		showing:  atomic.NewBool(false),
		log:      log,
	}

	server, err := natsd.Serve(nc, cli.Subject, s)
	if err != nil {
		return err
	}
	defer server.Close()
	log.Infof("serving sensor at (%d, %d) size %d on %s", cli.X, cli.Y, cli.Size, cli.Subject)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case down := <-echoes:
				select {
				case <-gctx.Done():
					return nil
				case <-time.After(cli.EchoDelay):
				}
				var err error
				if down {
					err = server.FingerDown()
				} else {
					err = server.FingerUp()
				}
				if err != nil {
					log.WithError(err).Warn("unable to publish finger event")
				}
			}
		}
	})

	if cli.Locked {
		if err := publishLocked(nc); err != nil {
			return err
		}
		log.Info("published locked screen")
	}

	if cli.DreamIn > 0 {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(cli.DreamIn):
			}
			log.Info("dreaming")
			return publish(nc, lockstate.EventDreaming, true)
		})
	}

	<-gctx.Done()
	err = g.Wait()
	log.WithFields(logrus.Fields{
		"presses":  s.presses.Load(),
		"releases": s.releases.Load(),
	}).Info("exiting")
	return err
}

func publishLocked(nc *nats.Conn) error {
	for _, ev := range []struct {
		name  string
		value bool
	}{
		{lockstate.EventDetecting, true},
		{lockstate.EventBouncer, false},
		{lockstate.EventKeyguard, true},
	} {
		if err := publish(nc, ev.name, ev.value); err != nil {
			return err
		}
	}
	return nil
}

func publish(nc *nats.Conn, event string, value bool) error {
	if err := nc.Publish(lockstate.Subject(cli.Subject, event), []byte(strconv.FormatBool(value))); err != nil {
		return errors.Wrapf(err, "publish %s", event)
	}
	return nc.Flush()
}
