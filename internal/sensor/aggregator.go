package sensor

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ponytojas/go-freezer-control/internal/models"
)

// Aggregator polls a fixed set of sensors and averages the valid readings.
// It is not safe for concurrent use.
type Aggregator struct {
	sensors  []Sensor
	readings map[string]models.SensorReading
	humidity models.Reading
	last     models.AggregateState
	now      func() time.Time
	log      *slog.Logger
}

// NewAggregator returns an aggregator over sensors. Kinds may repeat but
// names must be unique.
func NewAggregator(sensors []Sensor, log *slog.Logger) (*Aggregator, error) {
	seen := make(map[string]bool, len(sensors))
	for _, s := range sensors {
		if seen[s.Name()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSensor, s.Name())
		}
		seen[s.Name()] = true
	}
	return &Aggregator{
		sensors:  sensors,
		readings: make(map[string]models.SensorReading, len(sensors)),
		now:      time.Now,
		log:      log,
	}, nil
}

// Poll reads every sensor once and returns the new aggregate. A failing
// sensor is recorded as absent and never stops the others from being read.
// NaN and infinite temperatures count as decode failures.
func (a *Aggregator) Poll() models.AggregateState {
	t := a.now()
	for _, s := range a.sensors {
		r := models.SensorReading{Name: s.Name(), Kind: s.Kind(), Time: t}

		sample, err := s.Read()
		if err == nil && !finite(sample.Temperature) {
			err = fmt.Errorf("%w: temperature %v", ErrSensorDecode, sample.Temperature)
		}
		if err != nil {
			r.Temperature = models.None()
			r.Err = err
			a.log.Error("sensor read failed", "sensor", s.Name(), "kind", s.Kind(), "err", err)
		} else {
			r.Temperature = models.Some(models.Round2(sample.Temperature))
			switch {
			case sample.HasHumidity && finite(sample.Humidity):
				a.humidity = models.Some(models.Round2(sample.Humidity))
			case sample.HasHumidity:
				a.log.Warn("discarding humidity", "sensor", s.Name(), "humidity", sample.Humidity)
			}
			a.log.Debug("sensor read", "sensor", s.Name(), "temperature", r.Temperature.Value)
		}
		a.readings[s.Name()] = r
	}

	state := models.AggregateState{
		Humidity:           a.humidity,
		AverageTemperature: a.average(),
		Sensors:            a.Readings(),
		Time:               t,
	}
	if !state.AverageTemperature.Valid {
		a.log.Warn("no sensor reported a valid temperature", "sensors", len(a.sensors))
	}
	a.last = state
	return state
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (a *Aggregator) average() models.Reading {
	var sum float64
	var n int
	for _, r := range a.readings {
		if !r.Temperature.Valid {
			continue
		}
		sum += r.Temperature.Value
		n++
	}
	if n == 0 {
		return models.None()
	}
	return models.Some(sum / float64(n))
}

// Readings returns the per-sensor results of the last poll in
// configuration order.
func (a *Aggregator) Readings() []models.SensorReading {
	out := make([]models.SensorReading, 0, len(a.sensors))
	for _, s := range a.sensors {
		if r, ok := a.readings[s.Name()]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Last returns the aggregate computed by the most recent poll.
func (a *Aggregator) Last() models.AggregateState {
	return a.last
}

// SetClock replaces time.Now for poll timestamps.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}
