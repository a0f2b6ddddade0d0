package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	response []byte
	readErr  error
	writes   [][]byte
}

func (f *fakeBus) Tx(w, r []byte) error {
	if w != nil {
		f.writes = append(f.writes, append([]byte(nil), w...))
	}
	if r != nil {
		if f.readErr != nil {
			return f.readErr
		}
		copy(r, f.response)
	}
	return nil
}

func am2320Frame(hum, temp uint16) []byte {
	b := []byte{0x03, 0x04, byte(hum >> 8), byte(hum), byte(temp >> 8), byte(temp)}
	crc := crc16Modbus(b)
	return append(b, byte(crc), byte(crc>>8))
}

func newFakeAM2320(bus *fakeBus) *AM2320 {
	s := NewAM2320("am2320", "1", 0)
	s.dev = bus
	s.sleep = func(time.Duration) {}
	return s
}

func TestCRC16Modbus(t *testing.T) {
	assert.Equal(t, uint16(0x4B37), crc16Modbus([]byte("123456789")))
}

func TestAM2320Read(t *testing.T) {
	bus := &fakeBus{response: am2320Frame(523, 0x8000|185)}
	s := newFakeAM2320(bus)

	got, err := s.Read()

	require.NoError(t, err)
	assert.InDelta(t, -18.5, got.Temperature, 1e-9)
	assert.InDelta(t, 52.3, got.Humidity, 1e-9)
	assert.True(t, got.HasHumidity)
	require.Len(t, bus.writes, 2)
	assert.Equal(t, []byte{0x03, 0x00, 0x04}, bus.writes[1])
}

func TestAM2320BadCRC(t *testing.T) {
	frame := am2320Frame(523, 250)
	frame[7] ^= 0xFF
	s := newFakeAM2320(&fakeBus{response: frame})

	_, err := s.Read()

	assert.ErrorIs(t, err, ErrSensorDecode)
}

func TestAM2320BusError(t *testing.T) {
	s := newFakeAM2320(&fakeBus{readErr: errors.New("remote I/O error")})

	_, err := s.Read()

	assert.ErrorIs(t, err, ErrSensorUnavailable)
}
