package sensor

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/ponytojas/go-freezer-control/internal/models"
)

// W1DevicesDir is where the Linux w1 subsystem exposes 1-Wire slaves.
const W1DevicesDir = "/sys/bus/w1/devices"

// ds18b20ResetValue is what the chip reports before its first conversion.
const ds18b20ResetValue = 85000

// DS18B20 reads a DS18B20 through the w1-therm sysfs interface.
type DS18B20 struct {
	name   string
	device string
	fs     afero.Fs
}

// NewDS18B20 returns a driver for the 1-Wire device id (e.g.
// "28-0316a2795bff"). An empty id picks the first DS18B20 found at read time.
func NewDS18B20(name, device string) *DS18B20 {
	return NewDS18B20WithFs(name, device, afero.NewOsFs())
}

// NewDS18B20WithFs is NewDS18B20 over an arbitrary filesystem.
func NewDS18B20WithFs(name, device string, fs afero.Fs) *DS18B20 {
	return &DS18B20{name: name, device: device, fs: fs}
}

func (s *DS18B20) Name() string            { return s.name }
func (s *DS18B20) Kind() models.SensorKind { return models.KindOneWire }

func (s *DS18B20) slavePath() (string, error) {
	if s.device != "" {
		return path.Join(W1DevicesDir, s.device, "w1_slave"), nil
	}
	matches, err := afero.Glob(s.fs, path.Join(W1DevicesDir, "28-*", "w1_slave"))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSensorUnavailable, s.name, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s: no DS18B20 on the 1-Wire bus", ErrSensorUnavailable, s.name)
	}
	return matches[0], nil
}

func (s *DS18B20) Read() (Sample, error) {
	p, err := s.slavePath()
	if err != nil {
		return Sample{}, err
	}
	b, err := afero.ReadFile(s.fs, p)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %s: %v", ErrSensorUnavailable, s.name, err)
	}
	temp, err := parseW1Slave(string(b))
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %s: %v", ErrSensorDecode, s.name, err)
	}
	return Sample{Temperature: temp}, nil
}

// parseW1Slave decodes the two-line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(content string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("expected 2 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("crc check failed")
	}
	i := strings.LastIndex(lines[1], "t=")
	if i < 0 {
		return 0, fmt.Errorf("no temperature field")
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][i+2:]))
	if err != nil {
		return 0, fmt.Errorf("bad temperature field: %v", err)
	}
	if milli == ds18b20ResetValue {
		return 0, fmt.Errorf("power-on reset value")
	}
	return float64(milli) / 1000, nil
}
