package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/michaelquigley/pfxlog"
	"github.com/nats-io/nats.go"
	"github.com/phinze/fodcircle/internal/config"
	"github.com/phinze/fodcircle/internal/daemon"
	"github.com/phinze/fodcircle/internal/daemon/natsd"
	"github.com/phinze/fodcircle/internal/geometry"
	"github.com/phinze/fodcircle/internal/lockstate"
	"github.com/phinze/fodcircle/internal/metrics"
	"github.com/phinze/fodcircle/internal/overlay"
	"github.com/phinze/fodcircle/internal/settings"
	"github.com/phinze/fodcircle/internal/surface"
	"github.com/phinze/fodcircle/internal/surface/deck"
	"github.com/phinze/fodcircle/internal/surface/window"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// RunCmd runs the overlay service.
type RunCmd struct{}

// Run connects to the sensor daemon, builds the overlay and serves it until
// interrupted or the window is closed.
func (r *RunCmd) Run(cli *CLI) error {
	log := pfxlog.ContextLogger("fodcircle")

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			log.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	store, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	nc, err := nats.Connect(cfg.Daemon.NATSURL,
		nats.Name("fodcircle"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return errors.Wrap(err, "connect to nats")
	}
	defer nc.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewPrometheusRecorder(registry)

	clock := clockwork.NewRealClock()
	bridge := daemon.NewBridge(
		natsd.NewConnector(nc, cfg.Daemon.Subject, clock),
		daemon.WithCallTimeout(cfg.Daemon.CallTimeout),
		daemon.WithRecorder(recorder),
	)
	defer bridge.Close()

	if err := waitForDaemon(ctx, bridge, cfg.Daemon.ConnectMaxWait); err != nil {
		return err
	}

	notifier := lockstate.NewNotifier()
	sub, err := lockstate.SubscribeNATS(nc, cfg.Daemon.Subject, notifier)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	rotation, err := geometry.ParseRotation(cfg.Display.Rotation)
	if err != nil {
		return err
	}
	circleColor, err := surface.ParseColor(cfg.Display.CircleColor)
	if err != nil {
		return err
	}
	scene := surface.NewScene(cfg.ScreenSize(), rotation)

	coord, err := overlay.New(ctx, overlay.Options{
		Daemon:    bridge,
		Surface:   scene,
		Settings:  store,
		LockState: notifier,
		Clock:     clock,
		WakeLock: overlay.NewWakeLock(clock, func(held bool) {
			log.WithField("held", held).Debug("wake lock")
			scene.HoldAwake(held)
		}),
		Recorder:      recorder,
		NavBarSize:    cfg.Display.NavBarSize,
		AnimationSize: cfg.Animation.Size,
		CircleColor:   circleColor,
	})
	if err != nil {
		return errors.Wrap(err, "unable to start overlay")
	}
	defer coord.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	g.Go(func() error {
		lockstate.WatchSleep(gctx, notifier)
		return nil
	})
	if cfg.Metrics.Listen != "" {
		serveMetrics(gctx, g, cfg.Metrics.Listen, registry)
	}

	switch cfg.Surface.Kind {
	case config.SurfaceDeck:
		d, err := deck.Open(scene)
		if err != nil {
			cancel()
			_ = g.Wait()
			return err
		}
		g.Go(func() error { return d.Run(gctx) })

	default:
		w := window.New(scene, cfg.Display.WindowScale, func(geometry.Rotation, geometry.Size) {
			coord.ConfigurationChanged()
		})
		// ebiten needs the main goroutine; closing the window ends the service
		if err := w.Run(gctx.Done()); err != nil {
			log.WithError(err).Error("window failed")
		}
		cancel()
	}

	err = g.Wait()
	log.Info("exiting")
	return err
}

// waitForDaemon retries the daemon lookup with exponential backoff until it
// answers, maxWait passes, or ctx is done.
func waitForDaemon(ctx context.Context, bridge *daemon.Bridge, maxWait time.Duration) error {
	log := pfxlog.ContextLogger("fodcircle")

	operation := func() error {
		_, err := bridge.Connect(ctx)
		if err != nil {
			log.WithError(err).Info("waiting for sensor daemon")
		}
		return err
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxInterval = 5 * time.Second
	expBackoff.MaxElapsedTime = maxWait

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return errors.Wrap(err, "sensor daemon unavailable")
	}
	return nil
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, registry *prometheus.Registry) {
	log := pfxlog.ContextLogger("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		log.Infof("serving metrics on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "metrics server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
