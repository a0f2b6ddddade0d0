package compressor

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// MemoryPin is an in-process relay used for simulation and tests.
type MemoryPin struct {
	mu       sync.Mutex
	level    bool
	readErr  error
	writeErr error
}

// NewMemoryPin returns a pin at the given level.
func NewMemoryPin(on bool) *MemoryPin {
	return &MemoryPin{level: on}
}

func (p *MemoryPin) Read() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return false, p.readErr
	}
	return p.level, nil
}

func (p *MemoryPin) Write(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return p.writeErr
	}
	p.level = on
	return nil
}

// FailReads makes reads fail with err; nil restores them.
func (p *MemoryPin) FailReads(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// FailWrites makes writes fail with err; nil restores them.
func (p *MemoryPin) FailWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

var gpio struct {
	mu   sync.Mutex
	open bool
}

func openGPIO() error {
	gpio.mu.Lock()
	defer gpio.mu.Unlock()
	if gpio.open {
		return nil
	}
	if err := rpio.Open(); err != nil {
		return err
	}
	gpio.open = true
	return nil
}

// RPIOPin drives a Raspberry Pi GPIO line (BCM numbering) through
// /dev/gpiomem. GPIO memory is mapped on first use, so a host without GPIO
// yields errors from Read and Write instead of failing construction.
type RPIOPin struct {
	bcm uint8

	mu    sync.Mutex
	ready bool
}

// NewRPIOPin returns the relay on BCM pin bcm.
func NewRPIOPin(bcm int) (*RPIOPin, error) {
	if bcm < 0 || bcm > 27 {
		return nil, fmt.Errorf("invalid BCM pin %d", bcm)
	}
	return &RPIOPin{bcm: uint8(bcm)}, nil
}

func (p *RPIOPin) setup() (rpio.Pin, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pin := rpio.Pin(p.bcm)
	if p.ready {
		return pin, nil
	}
	if err := openGPIO(); err != nil {
		return pin, fmt.Errorf("%w: gpio %d: %w", ErrActuatorIO, p.bcm, err)
	}
	pin.Output()
	p.ready = true
	return pin, nil
}

func (p *RPIOPin) Read() (bool, error) {
	pin, err := p.setup()
	if err != nil {
		return false, err
	}
	return pin.Read() == rpio.High, nil
}

func (p *RPIOPin) Write(on bool) error {
	pin, err := p.setup()
	if err != nil {
		return err
	}
	if on {
		pin.High()
	} else {
		pin.Low()
	}
	return nil
}

// CloseGPIO unmaps GPIO memory if it was mapped.
func CloseGPIO() error {
	gpio.mu.Lock()
	defer gpio.mu.Unlock()
	if !gpio.open {
		return nil
	}
	gpio.open = false
	return rpio.Close()
}
