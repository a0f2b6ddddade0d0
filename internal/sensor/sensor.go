// Package sensor reads the freezer's temperature sensors and fuses them
// into one aggregate value per poll.
package sensor

import (
	"errors"

	"github.com/ponytojas/go-freezer-control/internal/models"
)

var (
	// ErrSensorUnavailable means the device is absent or the bus failed.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrSensorDecode means the device answered with data that did not decode.
	ErrSensorDecode = errors.New("sensor reading could not be decoded")
	// ErrDuplicateSensor is returned when two sensors share a name.
	ErrDuplicateSensor = errors.New("duplicate sensor name")
)

// Sample is one successful read of a sensor.
type Sample struct {
	Temperature float64
	Humidity    float64
	HasHumidity bool
}

// Sensor is a single named, independently fallible temperature source.
type Sensor interface {
	Name() string
	Kind() models.SensorKind
	Read() (Sample, error)
}
