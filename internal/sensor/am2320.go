package sensor

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/ponytojas/go-freezer-control/internal/models"
)

// AM2320DefaultAddr is the fixed I2C address of the AM2320.
const AM2320DefaultAddr = 0x5C

const (
	am2320ReadRegisters = 0x03
	am2320ResponseLen   = 8
)

// txer is the part of an I2C device the AM2320 driver needs.
type txer interface {
	Tx(w, r []byte) error
}

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// AM2320 reads temperature and humidity from an AM2320 on an I2C bus.
type AM2320 struct {
	name    string
	busName string
	addr    uint16

	dev   txer
	close func() error
	sleep func(time.Duration)
}

// NewAM2320 returns a driver for the sensor at addr on busName ("1" on a
// Raspberry Pi). The bus is opened on first read.
func NewAM2320(name, busName string, addr uint16) *AM2320 {
	if addr == 0 {
		addr = AM2320DefaultAddr
	}
	return &AM2320{name: name, busName: busName, addr: addr, sleep: time.Sleep}
}

func (s *AM2320) Name() string            { return s.name }
func (s *AM2320) Kind() models.SensorKind { return models.KindI2C }

func (s *AM2320) open() error {
	if s.dev != nil {
		return nil
	}
	if err := hostInit(); err != nil {
		return fmt.Errorf("%w: %s: host init: %v", ErrSensorUnavailable, s.name, err)
	}
	bus, err := i2creg.Open(s.busName)
	if err != nil {
		return fmt.Errorf("%w: %s: open i2c bus %q: %v", ErrSensorUnavailable, s.name, s.busName, err)
	}
	s.dev = &i2c.Dev{Bus: bus, Addr: s.addr}
	s.close = bus.Close
	return nil
}

// Read wakes the sensor, requests the four measurement registers and
// decodes the CRC-checked response.
func (s *AM2320) Read() (Sample, error) {
	if err := s.open(); err != nil {
		return Sample{}, err
	}

	// The sensor sleeps between reads and NACKs the wake-up write.
	_ = s.dev.Tx([]byte{0x00}, nil)
	s.sleep(time.Millisecond)

	if err := s.dev.Tx([]byte{am2320ReadRegisters, 0x00, 0x04}, nil); err != nil {
		return Sample{}, fmt.Errorf("%w: %s: request: %v", ErrSensorUnavailable, s.name, err)
	}
	s.sleep(2 * time.Millisecond)

	buf := make([]byte, am2320ResponseLen)
	if err := s.dev.Tx(nil, buf); err != nil {
		return Sample{}, fmt.Errorf("%w: %s: read: %v", ErrSensorUnavailable, s.name, err)
	}
	return decodeAM2320(s.name, buf)
}

// Close releases the I2C bus.
func (s *AM2320) Close() error {
	if s.close == nil {
		return nil
	}
	err := s.close()
	s.dev, s.close = nil, nil
	return err
}

func decodeAM2320(name string, buf []byte) (Sample, error) {
	if len(buf) != am2320ResponseLen {
		return Sample{}, fmt.Errorf("%w: %s: short response (%d bytes)", ErrSensorDecode, name, len(buf))
	}
	if buf[0] != am2320ReadRegisters || buf[1] != 0x04 {
		return Sample{}, fmt.Errorf("%w: %s: unexpected header % x", ErrSensorDecode, name, buf[:2])
	}
	want := uint16(buf[6]) | uint16(buf[7])<<8
	if got := crc16Modbus(buf[:6]); got != want {
		return Sample{}, fmt.Errorf("%w: %s: crc mismatch got %#04x want %#04x", ErrSensorDecode, name, got, want)
	}

	hum := float64(uint16(buf[2])<<8|uint16(buf[3])) / 10
	raw := uint16(buf[4])<<8 | uint16(buf[5])
	temp := float64(raw&0x7FFF) / 10
	if raw&0x8000 != 0 {
		temp = -temp
	}
	return Sample{Temperature: temp, Humidity: hum, HasHumidity: true}, nil
}

func crc16Modbus(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
