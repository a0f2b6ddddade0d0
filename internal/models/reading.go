package models

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"
)

// SensorKind describes how a sensor is attached. It is metadata only.
type SensorKind string

const (
	KindI2C     SensorKind = "i2c"
	KindOneWire SensorKind = "1w"
	KindStatic  SensorKind = "static"
)

// Reading is a numeric value that may be absent. A Valid reading of 0 is a
// real measurement.
type Reading struct {
	Value float64
	Valid bool
}

// Some returns a present reading.
func Some(v float64) Reading {
	return Reading{Value: v, Valid: true}
}

// None returns an absent reading.
func None() Reading {
	return Reading{}
}

// Ptr returns nil for an absent reading, for drivers and encoders that map
// nil to NULL.
func (r Reading) Ptr() *float64 {
	if !r.Valid {
		return nil
	}
	v := r.Value
	return &v
}

// LogValue renders an absent reading as "n/a".
func (r Reading) LogValue() slog.Value {
	if !r.Valid {
		return slog.StringValue("n/a")
	}
	return slog.Float64Value(r.Value)
}

// MarshalJSON encodes an absent reading as null. JSON has no NaN or
// infinity, so those encode as null too.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Valid || math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, r.Value, 'f', -1, 64), nil
}

// UnmarshalJSON decodes null as an absent reading.
func (r *Reading) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*r = None()
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}
	*r = Some(v)
	return nil
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SensorReading is the outcome of reading one named sensor during a poll.
type SensorReading struct {
	Name        string     `json:"name"`
	Kind        SensorKind `json:"kind"`
	Temperature Reading    `json:"temperature"`
	Err         error      `json:"-"`
	Time        time.Time  `json:"time"`
}

// AggregateState is the result of the most recent poll.
type AggregateState struct {
	// Humidity keeps the last successful value across failed polls.
	Humidity           Reading         `json:"humidity"`
	AverageTemperature Reading         `json:"average_temperature"`
	Sensors            []SensorReading `json:"sensors"`
	Time               time.Time       `json:"time"`
}

// ValidCount returns how many sensors reported a value in this poll.
func (s AggregateState) ValidCount() int {
	n := 0
	for _, r := range s.Sensors {
		if r.Temperature.Valid {
			n++
		}
	}
	return n
}
