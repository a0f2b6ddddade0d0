package sensor

import (
	"fmt"
	"sync"

	"github.com/ponytojas/go-freezer-control/internal/models"
)

// Static is a sensor whose value is set by the program. It backs
// simulation mode and tests.
type Static struct {
	name string

	mu     sync.Mutex
	sample Sample
	err    error
}

// NewStatic returns a static sensor that reports temperature.
func NewStatic(name string, temperature float64) *Static {
	return &Static{name: name, sample: Sample{Temperature: temperature}}
}

func (s *Static) Name() string            { return s.name }
func (s *Static) Kind() models.SensorKind { return models.KindStatic }

// Set changes the reported sample and clears any failure.
func (s *Static) Set(sample Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sample = sample
	s.err = nil
}

// Fail makes subsequent reads return err wrapped in ErrSensorUnavailable.
func (s *Static) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Static) Read() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Sample{}, fmt.Errorf("%w: %s: %v", ErrSensorUnavailable, s.name, s.err)
	}
	return s.sample, nil
}
