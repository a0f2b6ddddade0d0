package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ponytojas/go-freezer-control/internal/compressor"
	"github.com/ponytojas/go-freezer-control/internal/controller"
	"github.com/ponytojas/go-freezer-control/internal/logging"
	"github.com/ponytojas/go-freezer-control/internal/models"
	"github.com/ponytojas/go-freezer-control/internal/sensor"
)

type countingSensor struct {
	mu    sync.Mutex
	reads int
}

func (s *countingSensor) Name() string            { return "counted" }
func (s *countingSensor) Kind() models.SensorKind { return models.KindStatic }

func (s *countingSensor) Read() (sensor.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return sensor.Sample{Temperature: -18}, nil
}

func (s *countingSensor) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

type pollCounter struct {
	mu    sync.Mutex
	polls int
}

func (p *pollCounter) RecordPoll(context.Context, models.AggregateState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	return nil
}

func (p *pollCounter) RecordEvent(context.Context, models.ActuatorEvent) error { return nil }

func (p *pollCounter) Polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

func TestPollLoopRecordsConstructionPollWithoutRereading(t *testing.T) {
	s := &countingSensor{}
	ctrl, err := controller.New(controller.Config{
		Sensors: []sensor.Sensor{s},
		Pin:     compressor.NewMemoryPin(false),
		Logger:  logging.Discard(),
	})
	require.NoError(t, err)
	rec := &pollCounter{}
	ctrl.AddRecorder(rec)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pollLoop(ctx, ctrl, time.Hour, logging.Discard())

	assert.Equal(t, 1, s.Reads())
	assert.Equal(t, 1, rec.Polls())
}

func TestPollLoopPollsOnTick(t *testing.T) {
	s := &countingSensor{}
	ctrl, err := controller.New(controller.Config{
		Sensors: []sensor.Sensor{s},
		Pin:     compressor.NewMemoryPin(false),
		Logger:  logging.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pollLoop(ctx, ctrl, 5*time.Millisecond, logging.Discard())
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.Reads() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done
}
