package natsd

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/phinze/fodcircle/internal/daemon"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSensor struct {
	presses, releases, shows, hides int
	lastBrightness                  int
}

func (f *fakeSensor) PositionX() int              { return 453 }
func (f *fakeSensor) PositionY() int              { return 1823 }
func (f *fakeSensor) Size() int                   { return 174 }
func (f *fakeSensor) ShouldBoostBrightness() bool { return true }
func (f *fakeSensor) DimAmount(brightness int) int {
	f.lastBrightness = brightness
	return 255 - brightness
}
func (f *fakeSensor) OnPress()       { f.presses++ }
func (f *fakeSensor) OnRelease()     { f.releases++ }
func (f *fakeSensor) OnShowFODView() { f.shows++ }
func (f *fakeSensor) OnHideFODView() { f.hides++ }

type countingCallback struct {
	downs, ups int
}

func (c *countingCallback) FingerDown() { c.downs++ }
func (c *countingCallback) FingerUp()   { c.ups++ }

func TestSubject(t *testing.T) {
	assert.Equal(t, "fod.inscreen.onPress", Subject(DefaultPrefix, methodPress))
}

func TestServerAnswersQueries(t *testing.T) {
	sensor := &fakeSensor{}
	s := &Server{sensor: sensor}

	assert.Equal(t, 453, s.answer(methodPositionX, nil).Value)
	assert.Equal(t, 1823, s.answer(methodPositionY, nil).Value)
	assert.Equal(t, 174, s.answer(methodSize, nil).Value)
	assert.True(t, s.answer(methodShouldBoostBrightness, nil).Flag)

	data, err := json.Marshal(request{Brightness: 100})
	require.NoError(t, err)
	assert.Equal(t, 155, s.answer(methodDimAmount, data).Value)
	assert.Equal(t, 100, sensor.lastBrightness)

	assert.NotEmpty(t, s.answer("bogus", nil).Error)
	assert.NotEmpty(t, s.answer(methodDimAmount, []byte("{")).Error)
}

func TestServerCommands(t *testing.T) {
	sensor := &fakeSensor{}
	s := &Server{sensor: sensor}

	s.command(methodShow)
	s.command(methodPress)
	s.command(methodRelease)
	s.command(methodHide)

	assert.Equal(t, 1, sensor.shows)
	assert.Equal(t, 1, sensor.presses)
	assert.Equal(t, 1, sensor.releases)
	assert.Equal(t, 1, sensor.hides)
}

func TestReplyRoundTripCarriesErrors(t *testing.T) {
	_, err := decodeReply(encodeReply(reply{Error: "sensor busy"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, daemon.ErrRemoteUnavailable))

	r, err := decodeReply(encodeReply(reply{Value: 7, Flag: true}))
	require.NoError(t, err)
	assert.Equal(t, 7, r.Value)
	assert.True(t, r.Flag)

	_, err = decodeReply([]byte("not json"))
	assert.Error(t, err)
}

func TestDispatchCallback(t *testing.T) {
	cb := &countingCallback{}

	assert.True(t, dispatchCallback(cb, []byte(eventFingerDown)))
	assert.True(t, dispatchCallback(cb, []byte(eventFingerUp)))
	assert.False(t, dispatchCallback(cb, []byte("fingerSideways")))

	assert.Equal(t, 1, cb.downs)
	assert.Equal(t, 1, cb.ups)
}

func TestWatchdogReportsLostHeartbeat(t *testing.T) {
	fc := clockwork.NewFakeClock()
	reasons := make(chan string, 2)
	w := newWatchdog(fc, time.Second, 3, func() bool { return false }, func(r string) { reasons <- r })
	w.start()
	defer w.close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))

	for i := 0; i < 3; i++ {
		fc.Advance(time.Second)
		w.beat()
	}
	select {
	case r := <-reasons:
		t.Fatalf("declared dead while beating: %s", r)
	case <-time.After(50 * time.Millisecond):
	}

	for i := 0; i < 4; i++ {
		fc.Advance(time.Second)
	}
	select {
	case r := <-reasons:
		assert.Equal(t, "heartbeat lost", r)
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never fired")
	}
}

func TestWatchdogReportsClosedConnection(t *testing.T) {
	fc := clockwork.NewFakeClock()
	reasons := make(chan string, 2)
	w := newWatchdog(fc, time.Second, 3, func() bool { return true }, func(r string) { reasons <- r })
	w.start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Second)

	select {
	case r := <-reasons:
		assert.Equal(t, "connection closed", r)
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never fired")
	}
}

func TestWatchdogFiresOnceAndNotAfterDisarm(t *testing.T) {
	fired := 0
	w := newWatchdog(clockwork.NewFakeClock(), time.Second, 3, nil, func(string) { fired++ })

	w.dead("first")
	w.dead("second")
	assert.Equal(t, 1, fired)

	w2 := newWatchdog(clockwork.NewFakeClock(), time.Second, 3, nil, func(string) { fired++ })
	w2.disarm()
	w2.dead("late")
	assert.Equal(t, 1, fired)
}
