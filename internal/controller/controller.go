// Package controller owns the sensor aggregator and the compressor state
// machine of one freezer and serializes access to them.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ponytojas/go-freezer-control/internal/compressor"
	"github.com/ponytojas/go-freezer-control/internal/models"
	"github.com/ponytojas/go-freezer-control/internal/sensor"
)

// Recorder receives every poll result and actuator event. Errors are
// logged and never affect control.
type Recorder interface {
	RecordPoll(ctx context.Context, state models.AggregateState) error
	RecordEvent(ctx context.Context, event models.ActuatorEvent) error
}

// Config wires a Controller.
type Config struct {
	Sensors []sensor.Sensor
	Pin     compressor.Pin
	// MinRun defaults to compressor.DefaultMinRun when zero.
	MinRun time.Duration
	Clock  func() time.Time
	Logger *slog.Logger

	// RefuseUnknownStart refuses stops while the activation time is
	// unknown. Short-lived processes that did not start the compressor
	// themselves set it.
	RefuseUnknownStart bool
}

// Controller is the public surface of one freezer: poll temperature,
// start and stop the compressor, and inspect state. It is safe for
// concurrent use.
type Controller struct {
	mu         sync.Mutex
	aggregator *sensor.Aggregator
	compressor *compressor.StateMachine
	recorders  []Recorder
	now        func() time.Time
	log        *slog.Logger
}

// New builds a controller, polls the sensors once and reads the relay so
// the recorded state starts from what the hardware reports.
func New(cfg Config) (*Controller, error) {
	if cfg.Pin == nil {
		return nil, compressor.ErrNoActuatorPin
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MinRun == 0 {
		cfg.MinRun = compressor.DefaultMinRun
	}

	cfg.Logger.Info("initiating freezer", "sensors", len(cfg.Sensors), "min_run", cfg.MinRun)

	agg, err := sensor.NewAggregator(cfg.Sensors, cfg.Logger.With("component", "sensors"))
	if err != nil {
		return nil, err
	}
	agg.SetClock(cfg.Clock)

	opts := []compressor.Option{
		compressor.WithMinRun(cfg.MinRun),
		compressor.WithClock(cfg.Clock),
		compressor.WithLogger(cfg.Logger.With("component", "compressor")),
	}
	if cfg.RefuseUnknownStart {
		opts = append(opts, compressor.WithRefuseUnknownStart())
	}
	sm, err := compressor.New(cfg.Pin, opts...)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		aggregator: agg,
		compressor: sm,
		now:        cfg.Clock,
		log:        cfg.Logger,
	}
	c.aggregator.Poll()
	return c, nil
}

// AddRecorder registers r for subsequent polls and events.
func (c *Controller) AddRecorder(r Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorders = append(c.recorders, r)
}

// Temperature polls every sensor and returns the fresh average, absent
// when no sensor produced a value.
func (c *Controller) Temperature(ctx context.Context) models.Reading {
	return c.Poll(ctx).AverageTemperature
}

// Poll polls every sensor and returns the full aggregate.
func (c *Controller) Poll(ctx context.Context) models.AggregateState {
	c.mu.Lock()
	state := c.aggregator.Poll()
	recorders := c.recorders
	c.mu.Unlock()

	c.record(ctx, recorders, state)
	return state
}

func (c *Controller) record(ctx context.Context, recorders []Recorder, state models.AggregateState) {
	for _, r := range recorders {
		if err := r.RecordPoll(ctx, state); err != nil {
			c.log.Error("failed to record poll", "err", err)
		}
	}
}

// Publish hands the result of the last poll to every recorder without
// polling again. A freshly built controller has already polled once, so
// a poll loop publishes first and polls on its first tick.
func (c *Controller) Publish(ctx context.Context) models.AggregateState {
	c.mu.Lock()
	state := c.aggregator.Last()
	recorders := c.recorders
	c.mu.Unlock()

	c.record(ctx, recorders, state)
	return state
}

// Start switches the compressor on.
func (c *Controller) Start(ctx context.Context) (models.Outcome, error) {
	return c.actuate(ctx, "start", c.compressor.Start)
}

// Stop switches the compressor off, or refuses with the remaining wait
// while the minimum run time has not elapsed.
func (c *Controller) Stop(ctx context.Context) (models.Outcome, error) {
	return c.actuate(ctx, "stop", c.compressor.Stop)
}

func (c *Controller) actuate(ctx context.Context, command string, op func() (models.Outcome, error)) (models.Outcome, error) {
	c.mu.Lock()
	out, err := op()
	event := models.NewActuatorEvent(command, out, err, c.compressor.State(), c.now())
	recorders := c.recorders
	c.mu.Unlock()

	c.log.Info("compressor command", "command", command, "outcome", out.Kind, "wait", out.Wait.Round(time.Second), "on", event.State.IsOn)
	for _, r := range recorders {
		if rerr := r.RecordEvent(ctx, event); rerr != nil {
			c.log.Error("failed to record actuator event", "err", rerr)
		}
	}
	return out, err
}

// Aggregate returns the result of the last poll without polling.
func (c *Controller) Aggregate() models.AggregateState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aggregator.Last()
}

// Actuator returns the recorded compressor state.
func (c *Controller) Actuator() models.ActuatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compressor.State()
}

// MinRun returns the configured minimum run time.
func (c *Controller) MinRun() time.Duration {
	return c.compressor.MinRun()
}
