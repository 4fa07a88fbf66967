package overlay

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/phinze/fodcircle/internal/burnin"
	"github.com/phinze/fodcircle/internal/daemon"
	"github.com/phinze/fodcircle/internal/geometry"
	"github.com/phinze/fodcircle/internal/lockstate"
	"github.com/phinze/fodcircle/internal/settings"
	"github.com/phinze/fodcircle/internal/surface"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testGeometry = daemon.Geometry{X: 445, Y: 1910, Size: 190, BoostBrightness: true}

var screen = geometry.Size{Width: 1080, Height: 2400}

const navBar = 126

type fakeDaemon struct {
	mu          sync.Mutex
	calls       []string
	brightness  []int
	dim         int
	geometry    daemon.Geometry
	geometryErr error
	callback    daemon.Callback
	// offline drops every command, as the bridge does with no daemon
	offline bool
}

func (d *fakeDaemon) record(call string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.offline {
		return false
	}
	d.calls = append(d.calls, call)
	return true
}

func (d *fakeDaemon) setOffline(offline bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offline = offline
}

func (d *fakeDaemon) SetCallback(_ context.Context, cb daemon.Callback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callback = cb
}

func (d *fakeDaemon) QueryGeometry(context.Context) (daemon.Geometry, error) {
	return d.geometry, d.geometryErr
}

func (d *fakeDaemon) DimAmount(_ context.Context, brightness int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.brightness = append(d.brightness, brightness)
	return d.dim, nil
}

func (d *fakeDaemon) NotifyPress(context.Context) bool   { return d.record("press") }
func (d *fakeDaemon) NotifyRelease(context.Context) bool { return d.record("release") }
func (d *fakeDaemon) NotifyShow(context.Context) bool    { return d.record("show") }
func (d *fakeDaemon) NotifyHide(context.Context) bool    { return d.record("hide") }

func (d *fakeDaemon) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *fakeDaemon) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

func count(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}

type mapSettings struct {
	mu     sync.Mutex
	values map[string]string
	ints   map[string]int
}

func newMapSettings() *mapSettings {
	return &mapSettings{values: map[string]string{}, ints: map[string]int{}}
}

func (s *mapSettings) Int(key string, def int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.ints[key]; ok {
		return v
	}
	return def
}

func (s *mapSettings) String(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

func (s *mapSettings) setInt(key string, v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ints[key] = v
}

type countingRecorder struct {
	mu     sync.Mutex
	jitter int
	shown  int
}

func (r *countingRecorder) IncDaemonCommand(string, bool) {}
func (r *countingRecorder) IncReconnect(bool)             {}
func (r *countingRecorder) SetDaemonConnected(bool)       {}
func (r *countingRecorder) IncEvent(string)               {}

func (r *countingRecorder) IncCircleShown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown++
}

func (r *countingRecorder) IncJitterApplied() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jitter++
}

func (r *countingRecorder) jitterCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jitter
}

type harness struct {
	t        *testing.T
	c        *Coordinator
	daemon   *fakeDaemon
	scene    *surface.Scene
	notifier *lockstate.Notifier
	settings *mapSettings
	clock    *clockwork.FakeClock
	recorder *countingRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:        t,
		daemon:   &fakeDaemon{geometry: testGeometry, dim: 255},
		scene:    surface.NewScene(screen, geometry.Rotation0),
		notifier: lockstate.NewNotifier(),
		settings: newMapSettings(),
		clock:    clockwork.NewFakeClock(),
		recorder: &countingRecorder{},
	}

	c, err := New(context.Background(), Options{
		Daemon:        h.daemon,
		Surface:       h.scene,
		Settings:      h.settings,
		LockState:     h.notifier,
		Clock:         h.clock,
		WakeLock:      NewWakeLock(h.clock, h.scene.HoldAwake),
		Recorder:      h.recorder,
		NavBarSize:    navBar,
		AnimationSize: 300,
	})
	require.NoError(t, err)
	h.c = c

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = c.Close()
	})
	return h
}

func (h *harness) flush() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(h.t, h.c.Flush(ctx))
}

func (h *harness) position() image.Point {
	l := h.c.Layout()
	return image.Pt(l.X, l.Y)
}

func TestNewFailsWithoutGeometry(t *testing.T) {
	d := &fakeDaemon{geometryErr: errors.WithStack(daemon.ErrServiceNotFound)}
	_, err := New(context.Background(), Options{
		Daemon:    d,
		Surface:   surface.NewScene(screen, geometry.Rotation0),
		Settings:  newMapSettings(),
		LockState: lockstate.NewNotifier(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, daemon.ErrServiceNotFound))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(context.Background(), Options{})
	assert.Error(t, err)
}

func TestConstructionLeavesOverlayHidden(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, []string{"hide", "release"}, h.daemon.Calls())
	assert.Equal(t, Config{
		PositionX: 445, PositionY: 1910, Size: 190,
		ShouldBoostBrightness: true, NavBarSize: navBar, DreamingMaxOffset: 19,
	}, h.c.Config())
	assert.Equal(t, State{}, h.c.State())
	assert.Equal(t, image.Pt(445, 1910), h.position())
	assert.True(t, h.scene.Contains(h.c.view))
	assert.False(t, h.c.view.Visible())
	assert.Equal(t, 1, h.notifier.Len())
	assert.NotNil(t, h.daemon.callback)
}

func TestFingerDownUpDispatchesOnePressThenOneRelease(t *testing.T) {
	h := newHarness(t)
	h.daemon.reset()

	h.c.FingerDown()
	h.flush()
	assert.True(t, h.c.State().CircleShowing)

	h.c.FingerUp()
	h.flush()
	assert.False(t, h.c.State().CircleShowing)

	assert.Equal(t, []string{"press", "release"}, h.daemon.Calls())
}

func TestShowCircleDims(t *testing.T) {
	h := newHarness(t)
	h.settings.setInt(settings.KeyScreenBrightness, 42)
	h.daemon.dim = 51

	h.c.FingerDown()
	h.flush()

	l := h.c.Layout()
	assert.InDelta(t, 0.2, l.DimAmount, 0.001)
	assert.Equal(t, float32(1), l.ScreenBrightness)
	assert.True(t, l.KeepScreenOn)
	assert.Equal(t, []int{42}, h.daemon.brightness)

	h.c.FingerUp()
	h.flush()
	l = h.c.Layout()
	assert.Zero(t, l.DimAmount)
	assert.Zero(t, l.ScreenBrightness)
	assert.False(t, l.KeepScreenOn)
}

func TestDimUsesDefaultBrightness(t *testing.T) {
	h := newHarness(t)
	h.c.FingerDown()
	h.flush()
	assert.Equal(t, []int{settings.DefaultScreenBrightness}, h.daemon.brightness)
}

func TestHideResetsEverything(t *testing.T) {
	h := newHarness(t)
	h.c.Show()
	h.c.FingerDown()
	h.flush()
	require.True(t, h.c.State().Showing)
	require.True(t, h.c.State().CircleShowing)

	h.c.Hide()
	h.flush()

	s := h.c.State()
	assert.False(t, s.Showing)
	assert.False(t, s.CircleShowing)
	assert.False(t, h.c.view.Visible())
	l := h.c.Layout()
	assert.Zero(t, l.DimAmount)
	assert.False(t, l.KeepScreenOn)
	calls := h.daemon.Calls()
	assert.Equal(t, "hide", calls[len(calls)-2])
	assert.Equal(t, "release", calls[len(calls)-1])
}

func TestShowIgnoredUnderBouncer(t *testing.T) {
	h := newHarness(t)
	h.notifier.SetBouncer(true)
	h.flush()
	h.daemon.reset()

	h.c.Show()
	h.flush()

	assert.False(t, h.c.State().Showing)
	assert.False(t, h.c.view.Visible())
	assert.Zero(t, count(h.daemon.Calls(), "show"))
}

func TestBouncerDismissedShowsWhenDetecting(t *testing.T) {
	h := newHarness(t)

	h.notifier.SetBouncer(true)
	h.notifier.SetBouncer(false)
	h.flush()
	assert.False(t, h.c.State().Showing)

	h.notifier.SetFingerprintDetectionRunning(true)
	h.notifier.SetBouncer(true)
	h.notifier.SetBouncer(false)
	h.flush()
	assert.True(t, h.c.State().Showing)
	assert.True(t, h.c.view.Visible())
}

func TestDetectionDrivesShowAndHide(t *testing.T) {
	h := newHarness(t)
	h.daemon.reset()

	require.NoError(t, lockstate.Apply(h.notifier, lockstate.EventDetecting, "true"))
	h.flush()
	assert.True(t, h.c.State().Showing)
	assert.True(t, h.c.view.Visible())

	require.NoError(t, lockstate.Apply(h.notifier, lockstate.EventDetecting, "false"))
	h.flush()
	assert.False(t, h.c.State().Showing)
	assert.False(t, h.c.view.Visible())

	assert.Equal(t, []string{"show", "hide"}, h.daemon.Calls())
}

func TestDetectionIgnoredUnderBouncer(t *testing.T) {
	h := newHarness(t)
	h.notifier.SetBouncer(true)
	h.notifier.SetFingerprintDetectionRunning(true)
	h.flush()

	assert.False(t, h.c.State().Showing)
	assert.False(t, h.c.view.Visible())
}

func TestDroppedPressIsRetriedNotReleased(t *testing.T) {
	h := newHarness(t)
	h.daemon.reset()

	h.daemon.setOffline(true)
	h.c.FingerDown()
	h.flush()
	h.daemon.setOffline(false)

	// the daemon never saw the press, so lifting the finger sends nothing
	h.c.FingerUp()
	h.flush()
	assert.Empty(t, h.daemon.Calls())

	h.daemon.setOffline(true)
	h.c.FingerDown()
	h.flush()
	h.daemon.setOffline(false)

	// the next layout pass while still pressed delivers it
	h.c.ConfigurationChanged()
	h.flush()
	h.c.FingerUp()
	h.flush()
	assert.Equal(t, []string{"press", "release"}, h.daemon.Calls())
}

func TestScreenOffOnlyHidesCircle(t *testing.T) {
	h := newHarness(t)
	h.c.Show()
	h.c.FingerDown()
	h.flush()

	h.notifier.ScreenTurnedOff()
	h.flush()

	s := h.c.State()
	assert.True(t, s.Showing)
	assert.False(t, s.CircleShowing)
}

func TestKeyguardOverridesRotation(t *testing.T) {
	h := newHarness(t)
	h.scene.SetRotation(geometry.Rotation90)
	h.c.ConfigurationChanged()
	h.flush()
	assert.Equal(t, image.Pt(1910, 445), h.position())

	h.notifier.SetKeyguardVisible(true)
	h.flush()
	assert.Equal(t, image.Pt(445, 1910), h.position())
	assert.True(t, h.c.State().Keyguard)
}

func TestRotationTable(t *testing.T) {
	h := newHarness(t)

	h.scene.SetRotation(geometry.Rotation180)
	h.c.ConfigurationChanged()
	h.flush()
	assert.Equal(t, image.Pt(445, 2400-1910-190), h.position())

	h.scene.SetRotation(geometry.Rotation270)
	h.c.ConfigurationChanged()
	h.flush()
	// the scene is now 2400 wide
	assert.Equal(t, image.Pt(2400-1910-190-navBar, 445), h.position())
}

func TestUnknownRotationPanics(t *testing.T) {
	h := newHarness(t)
	h.scene.SetRotation(geometry.Rotation(45))

	assert.PanicsWithError(t,
		"display reported an impossible rotation: 45: unknown rotation",
		func() { h.c.updatePosition() })
}

func TestDreamingToggleWithinPeriodAppliesNoJitter(t *testing.T) {
	h := newHarness(t)
	start := h.position()

	h.notifier.SetDreaming(true)
	h.flush()
	assert.True(t, h.c.jitter.Running())

	h.notifier.SetDreaming(false)
	h.flush()
	assert.False(t, h.c.jitter.Running())

	h.clock.Advance(2 * burnin.Period)
	h.flush()

	assert.Zero(t, h.recorder.jitterCount())
	assert.Equal(t, start, h.position())
}

func TestDreamingJitterMovesYOnly(t *testing.T) {
	h := newHarness(t)

	h.notifier.SetDreaming(true)
	h.flush()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	h.clock.Advance(burnin.Period)

	require.Eventually(t, func() bool {
		return h.recorder.jitterCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
	h.flush()

	wantX, wantY := burnin.Offsets(h.clock.Now().Unix()/60, h.c.Config().DreamingMaxOffset)
	s := h.c.State()
	assert.Equal(t, wantX, s.DreamingOffsetX)
	assert.Equal(t, wantY, s.DreamingOffsetY)
	assert.Equal(t, image.Pt(445, 1910+wantY), h.position())
	assert.Equal(t, 1910+wantY-150, h.c.anim.Y())
}

func TestJitterIgnoredWhenNotDreaming(t *testing.T) {
	h := newHarness(t)
	h.c.enqueue(jitterEvent{x: 5, y: 5})
	h.flush()
	assert.Zero(t, h.recorder.jitterCount())
	assert.Equal(t, image.Pt(445, 1910), h.position())
}

func TestFingerDownWhileDreamingHoldsWakeLock(t *testing.T) {
	h := newHarness(t)
	h.notifier.SetDreaming(true)
	h.c.FingerDown()
	h.flush()
	assert.True(t, h.c.wake.Held())

	h.notifier.SetDreaming(false)
	h.flush()
	h.clock.Advance(wakeHold)
	assert.Eventually(t, func() bool { return !h.c.wake.Held() }, time.Second, time.Millisecond)
}

func TestWakeLockHoldsSceneAwakePastFingerUp(t *testing.T) {
	h := newHarness(t)
	h.notifier.SetDreaming(true)
	h.c.FingerDown()
	h.c.FingerUp()
	h.flush()

	assert.False(t, h.c.Layout().KeepScreenOn)
	assert.True(t, h.scene.KeepScreenOn())

	h.clock.Advance(wakeHold)
	assert.Eventually(t, func() bool { return !h.scene.KeepScreenOn() }, time.Second, time.Millisecond)
}

func TestTouchDrivesCircleAndAnimation(t *testing.T) {
	h := newHarness(t)
	h.settings.setInt(settings.KeyRecognizingAnimation, 1)
	h.notifier.SetKeyguardVisible(true)
	h.c.Show()
	h.flush()
	h.daemon.reset()

	// strictly inside the overlay
	assert.True(t, h.scene.Touch(surface.TouchDown, 445+10, 1910+10))
	h.flush()
	assert.True(t, h.c.State().CircleShowing)
	assert.True(t, h.c.anim.Attached())
	assert.True(t, h.scene.Contains(h.c.anim))

	assert.True(t, h.scene.Touch(surface.TouchMove, 445+20, 1910+20))
	assert.True(t, h.scene.Touch(surface.TouchUp, 445+20, 1910+20))
	h.flush()
	assert.False(t, h.c.State().CircleShowing)
	assert.False(t, h.c.anim.Attached())

	assert.Equal(t, []string{"press", "release"}, h.daemon.Calls())
}

func TestTouchOnEdgeIsNotInside(t *testing.T) {
	h := newHarness(t)
	h.c.Show()
	h.flush()

	assert.False(t, h.scene.Touch(surface.TouchDown, 445, 1910))
	h.flush()
	assert.False(t, h.c.State().CircleShowing)
}

func TestTouchWithoutAnimationSetting(t *testing.T) {
	h := newHarness(t)
	h.notifier.SetKeyguardVisible(true)
	h.c.Show()
	h.flush()

	h.scene.Touch(surface.TouchDown, 445+10, 1910+10)
	h.flush()
	assert.True(t, h.c.State().CircleShowing)
	assert.False(t, h.c.anim.Attached())
	h.scene.Touch(surface.TouchUp, 445+10, 1910+10)
	h.flush()
}

func TestCustomIcon(t *testing.T) {
	h := newHarness(t)

	path := filepath.Join(t.TempDir(), "icon.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	require.NoError(t, f.Close())

	h.settings.mu.Lock()
	h.settings.values[settings.KeyCustomIcon] = path
	h.settings.mu.Unlock()

	h.c.FingerDown()
	h.c.FingerUp()
	h.flush()

	h.c.view.mu.Lock()
	icon := h.c.view.icon
	h.c.view.mu.Unlock()
	require.NotNil(t, icon)
	assert.Equal(t, image.Rect(0, 0, 190, 190), icon.Bounds())
	assert.NotSame(t, h.c.defaultIcon, icon)
}

func TestAnimationAssetFollowsSetting(t *testing.T) {
	h := newHarness(t)
	h.settings.setInt(settings.KeyAnimation, 10)
	h.c.FingerUp()
	h.flush()
	assert.Equal(t, "op_wave", h.c.anim.Asset().Name)
}

func TestCloseUnsubscribesAndRemoves(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.c.Close())
	require.NoError(t, h.c.Close())

	assert.Zero(t, h.notifier.Len())
	assert.False(t, h.scene.Contains(h.c.view))

	// every attempt must see the closed coordinator, never a free queue slot
	for i := 0; i < defaultQueueSize*2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err := h.c.Flush(ctx)
		cancel()
		require.Error(t, err)
		assert.False(t, errors.Is(err, context.DeadlineExceeded))
	}
}
