package compressor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ponytojas/go-freezer-control/internal/logging"
	"github.com/ponytojas/go-freezer-control/internal/models"
)

type mockPin struct {
	mock.Mock
}

func (m *mockPin) Read() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *mockPin) Write(on bool) error {
	return m.Called(on).Error(0)
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newMachine(t *testing.T, pin Pin, clock *fakeClock) *StateMachine {
	t.Helper()
	m, err := New(pin, WithClock(clock.Now), WithLogger(logging.Discard()))
	require.NoError(t, err)
	return m
}

func TestNewWithoutPin(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoActuatorPin)
}

func TestInitialStateMirrorsPin(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}

	on := newMachine(t, NewMemoryPin(true), clock)
	assert.True(t, on.State().IsOn)
	assert.True(t, on.State().OnSince.IsZero())

	off := newMachine(t, NewMemoryPin(false), clock)
	assert.False(t, off.State().IsOn)
}

func TestInitialReadFailurePresumesOff(t *testing.T) {
	pin := &mockPin{}
	pin.On("Read").Return(true, errors.New("gpio not present")).Once()

	m := newMachine(t, pin, &fakeClock{})

	assert.False(t, m.State().IsOn)
	pin.AssertExpectations(t)
}

func TestStartIsIdempotent(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	pin := NewMemoryPin(false)
	m := newMachine(t, pin, clock)

	out, err := m.Start()
	require.NoError(t, err)
	assert.Equal(t, models.Started, out.Kind)
	first := m.State().OnSince

	clock.Advance(10 * time.Second)
	out, err = m.Start()
	require.NoError(t, err)
	assert.Equal(t, models.AlreadyRunning, out.Kind)
	assert.Equal(t, first, m.State().OnSince)
	assert.Equal(t, time.Unix(1000, 0), first)
}

func TestMinimumRunGuard(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	pin := NewMemoryPin(false)
	m := newMachine(t, pin, clock)

	_, err := m.Start()
	require.NoError(t, err)

	clock.Advance(100 * time.Second)
	out, err := m.Stop()
	require.NoError(t, err)
	assert.Equal(t, models.Refused, out.Kind)
	assert.Equal(t, 200*time.Second, out.Wait)
	level, _ := pin.Read()
	assert.True(t, level, "refused stop must not touch the pin")
	assert.True(t, m.State().IsOn)

	clock.Advance(201 * time.Second)
	out, err = m.Stop()
	require.NoError(t, err)
	assert.Equal(t, models.Stopped, out.Kind)
	assert.False(t, m.State().IsOn)
	assert.Equal(t, time.Unix(1301, 0), m.State().OffSince)
	assert.Equal(t, time.Unix(1000, 0), m.State().OnSince, "on_since is kept after stopping")
}

func TestStopAtExactlyMinRun(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	m, err := New(NewMemoryPin(false), WithClock(clock.Now), WithLogger(logging.Discard()), WithMinRun(time.Minute))
	require.NoError(t, err)

	_, err = m.Start()
	require.NoError(t, err)
	clock.Advance(time.Minute)

	out, err := m.Stop()
	require.NoError(t, err)
	assert.Equal(t, models.Stopped, out.Kind)
}

func TestStopWhenAlreadyStopped(t *testing.T) {
	m := newMachine(t, NewMemoryPin(false), &fakeClock{})

	out, err := m.Stop()

	require.NoError(t, err)
	assert.Equal(t, models.AlreadyStopped, out.Kind)
}

func TestStopWithUnknownStartTime(t *testing.T) {
	m := newMachine(t, NewMemoryPin(true), &fakeClock{t: time.Unix(5, 0)})

	out, err := m.Stop()

	require.NoError(t, err)
	assert.Equal(t, models.Stopped, out.Kind)
}

func TestStopWithUnknownStartTimeRefused(t *testing.T) {
	clock := &fakeClock{t: time.Unix(5, 0)}
	pin := NewMemoryPin(true)
	m, err := New(pin, WithClock(clock.Now), WithLogger(logging.Discard()), WithRefuseUnknownStart())
	require.NoError(t, err)

	out, err := m.Stop()

	require.NoError(t, err)
	assert.Equal(t, models.Refused, out.Kind)
	assert.Equal(t, DefaultMinRun, out.Wait)
	on, err := pin.Read()
	require.NoError(t, err)
	assert.True(t, on, "relay must stay on")
	assert.True(t, m.State().IsOn)
}

// A start and a stop issued by two short-lived processes sharing one relay.
func TestStopFromSecondProcessRefusedWhenStartUnknown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	pin := NewMemoryPin(false)

	first := newMachine(t, pin, clock)
	out, err := first.Start()
	require.NoError(t, err)
	require.Equal(t, models.Started, out.Kind)

	clock.Advance(10 * time.Second)
	second, err := New(pin, WithClock(clock.Now), WithLogger(logging.Discard()), WithRefuseUnknownStart())
	require.NoError(t, err)
	out, err = second.Stop()

	require.NoError(t, err)
	assert.Equal(t, models.Refused, out.Kind)
	on, err := pin.Read()
	require.NoError(t, err)
	assert.True(t, on)
}

func TestRefuseUnknownStartIgnoredOnceStartIsKnown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	m, err := New(NewMemoryPin(false), WithClock(clock.Now), WithLogger(logging.Discard()), WithRefuseUnknownStart())
	require.NoError(t, err)
	_, err = m.Start()
	require.NoError(t, err)
	clock.Advance(DefaultMinRun)

	out, err := m.Stop()

	require.NoError(t, err)
	assert.Equal(t, models.Stopped, out.Kind)
}

func TestStartFailsClosedOnWriteError(t *testing.T) {
	pin := &mockPin{}
	pin.On("Read").Return(false, nil)
	pin.On("Write", true).Return(errors.New("relay board unplugged"))

	m := newMachine(t, pin, &fakeClock{t: time.Unix(1, 0)})
	out, err := m.Start()

	assert.Equal(t, models.Failed, out.Kind)
	assert.ErrorIs(t, err, ErrActuatorIO)
	assert.False(t, m.State().IsOn)
	assert.True(t, m.State().OnSince.IsZero())
	pin.AssertExpectations(t)
}

func TestStartFailsOnReadError(t *testing.T) {
	pin := &mockPin{}
	pin.On("Read").Return(false, nil).Once()
	pin.On("Read").Return(false, errors.New("i/o")).Once()

	m := newMachine(t, pin, &fakeClock{})
	out, err := m.Start()

	assert.Equal(t, models.Failed, out.Kind)
	assert.ErrorIs(t, err, ErrActuatorIO)
	pin.AssertNotCalled(t, "Write", mock.Anything)
}

func TestStopWriteErrorKeepsStateOn(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	pin := NewMemoryPin(false)
	m := newMachine(t, pin, clock)
	_, err := m.Start()
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)

	pin.FailWrites(errors.New("stuck relay"))
	out, err := m.Stop()

	assert.Equal(t, models.Failed, out.Kind)
	assert.ErrorIs(t, err, ErrActuatorIO)
	assert.True(t, m.State().IsOn)
	assert.True(t, m.State().OffSince.IsZero())
}

func TestStopFailsOnReadError(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	pin := NewMemoryPin(false)
	m := newMachine(t, pin, clock)
	_, err := m.Start()
	require.NoError(t, err)
	onSince := m.State().OnSince
	clock.Advance(DefaultMinRun + time.Minute)

	pin.FailReads(errors.New("gpio read timeout"))
	out, err := m.Stop()

	assert.Equal(t, models.Failed, out.Kind)
	assert.ErrorIs(t, err, ErrActuatorIO)
	assert.True(t, m.State().IsOn)
	assert.Equal(t, onSince, m.State().OnSince)
	assert.True(t, m.State().OffSince.IsZero())

	pin.FailReads(nil)
	on, err := pin.Read()
	require.NoError(t, err)
	assert.True(t, on, "relay level must be unchanged")
}

func TestStartSyncsExternallyEnabledRelay(t *testing.T) {
	pin := NewMemoryPin(false)
	m := newMachine(t, pin, &fakeClock{})
	require.NoError(t, pin.Write(true))

	out, err := m.Start()

	require.NoError(t, err)
	assert.Equal(t, models.AlreadyRunning, out.Kind)
	assert.True(t, m.State().IsOn)
}

func TestNewRPIOPinRejectsBadPin(t *testing.T) {
	_, err := NewRPIOPin(40)
	assert.Error(t, err)

	p, err := NewRPIOPin(14)
	require.NoError(t, err)
	assert.Equal(t, uint8(14), p.bcm)
}
