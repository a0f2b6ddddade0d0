// Package compressor drives the compressor relay and protects it from
// short-cycling.
package compressor

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ponytojas/go-freezer-control/internal/logging"
	"github.com/ponytojas/go-freezer-control/internal/models"
)

// DefaultMinRun is how long the compressor must run before it may be stopped.
const DefaultMinRun = 300 * time.Second

var (
	// ErrActuatorIO wraps every failed pin read or write.
	ErrActuatorIO = errors.New("actuator i/o error")
	// ErrNoActuatorPin means no relay pin was configured.
	ErrNoActuatorPin = errors.New("no actuator pin configured")
)

// Pin is the relay output. Read reports the level currently driven.
type Pin interface {
	Read() (bool, error)
	Write(on bool) error
}

// Option configures a StateMachine.
type Option func(*StateMachine)

// WithMinRun overrides DefaultMinRun.
func WithMinRun(d time.Duration) Option {
	return func(m *StateMachine) { m.minRun = d }
}

// WithClock replaces time.Now. The default clock carries a monotonic
// reading, so elapsed run time is unaffected by wall clock changes.
func WithClock(now func() time.Time) Option {
	return func(m *StateMachine) { m.now = now }
}

// WithRefuseUnknownStart makes Stop refuse, with the full minimum run
// time as the wait, while the activation time is unknown. Without it such
// a stop is allowed.
func WithRefuseUnknownStart() Option {
	return func(m *StateMachine) { m.refuseUnknown = true }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *StateMachine) { m.log = l }
}

// StateMachine tracks the relay state and refuses stops that would cut a
// run shorter than the minimum run time. There is no minimum off time.
// It is not safe for concurrent use.
type StateMachine struct {
	pin           Pin
	state         models.ActuatorState
	minRun        time.Duration
	refuseUnknown bool
	now           func() time.Time
	log           *slog.Logger
}

// New reads the pin once and starts in whatever state it reports. An
// unreadable pin is logged as critical and the machine starts presumed off.
func New(pin Pin, opts ...Option) (*StateMachine, error) {
	if pin == nil {
		return nil, ErrNoActuatorPin
	}
	m := &StateMachine{
		pin:    pin,
		minRun: DefaultMinRun,
		now:    time.Now,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	on, err := pin.Read()
	if err != nil {
		logging.Critical(m.log, "could not read compressor state, presuming off", "err", err)
		return m, nil
	}
	m.state.IsOn = on
	m.log.Info("compressor initial state", "on", on)
	return m, nil
}

// Start switches the compressor on. It is a no-op when the pin already
// reads high. A failed pin access leaves the recorded state untouched.
func (m *StateMachine) Start() (models.Outcome, error) {
	on, err := m.pin.Read()
	if err != nil {
		err = fmt.Errorf("%w: checking state before start: %w", ErrActuatorIO, err)
		logging.Critical(m.log, "could not check compressor state", "err", err)
		return models.Outcome{Kind: models.Failed}, err
	}
	if on {
		m.state.IsOn = true
		m.log.Debug("compressor is already running")
		return models.Outcome{Kind: models.AlreadyRunning}, nil
	}

	m.log.Info("starting compressor")
	if err := m.pin.Write(true); err != nil {
		err = fmt.Errorf("%w: starting compressor: %w", ErrActuatorIO, err)
		logging.Critical(m.log, "error starting compressor", "err", err)
		return models.Outcome{Kind: models.Failed}, err
	}
	m.state.IsOn = true
	m.state.OnSince = m.now()
	return models.Outcome{Kind: models.Started}, nil
}

// Stop switches the compressor off once it has run for the minimum run
// time. An early stop is refused with the remaining wait. When the start
// time is unknown (the relay was already on at construction) the stop is
// allowed unless WithRefuseUnknownStart was given.
func (m *StateMachine) Stop() (models.Outcome, error) {
	on, err := m.pin.Read()
	if err != nil {
		err = fmt.Errorf("%w: checking state before stop: %w", ErrActuatorIO, err)
		logging.Critical(m.log, "could not check compressor state", "err", err)
		return models.Outcome{Kind: models.Failed}, err
	}
	if !on {
		m.state.IsOn = false
		m.log.Debug("compressor is already stopped")
		return models.Outcome{Kind: models.AlreadyStopped}, nil
	}
	m.state.IsOn = true

	now := m.now()
	if m.state.OnSince.IsZero() && m.refuseUnknown {
		m.log.Warn("compressor activation time unknown, refusing stop", "min_run", m.minRun)
		return models.Outcome{Kind: models.Refused, Wait: m.minRun}, nil
	}
	if !m.state.OnSince.IsZero() {
		elapsed := now.Sub(m.state.OnSince)
		if elapsed < m.minRun {
			wait := m.minRun - elapsed
			m.log.Warn("compressor started too recently, refusing stop",
				"min_run", m.minRun, "wait", wait.Round(time.Second))
			return models.Outcome{Kind: models.Refused, Wait: wait}, nil
		}
	}

	m.log.Info("stopping compressor")
	if err := m.pin.Write(false); err != nil {
		err = fmt.Errorf("%w: stopping compressor: %w", ErrActuatorIO, err)
		logging.Critical(m.log, "error stopping compressor", "err", err)
		return models.Outcome{Kind: models.Failed}, err
	}
	m.state.IsOn = false
	m.state.OffSince = now
	return models.Outcome{Kind: models.Stopped}, nil
}

// State returns the recorded actuator state.
func (m *StateMachine) State() models.ActuatorState {
	return m.state
}

// MinRun returns the configured minimum run time.
func (m *StateMachine) MinRun() time.Duration {
	return m.minRun
}
