package controller

import (
	"fmt"
	"log/slog"

	"github.com/ponytojas/go-freezer-control/config"
	"github.com/ponytojas/go-freezer-control/internal/compressor"
	"github.com/ponytojas/go-freezer-control/internal/models"
	"github.com/ponytojas/go-freezer-control/internal/sensor"
)

// NewFromConfig builds the sensors and relay described by cfg and returns
// a controller over them. In simulate mode every sensor is static and the
// relay is held in memory.
func NewFromConfig(cfg *config.Config, log *slog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sensors, err := BuildSensors(cfg.Sensors, cfg.Compressor.Simulate)
	if err != nil {
		return nil, err
	}

	var pin compressor.Pin
	if cfg.Compressor.Simulate {
		log.Warn("simulation mode, no hardware will be driven")
		pin = compressor.NewMemoryPin(false)
	} else {
		p, err := compressor.NewRPIOPin(*cfg.Compressor.Pin)
		if err != nil {
			return nil, err
		}
		log.Info("compressor pin", "bcm", *cfg.Compressor.Pin)
		pin = p
	}

	return New(Config{
		Sensors: sensors,
		Pin:     pin,
		MinRun:  cfg.Compressor.MinRun,
		Logger:  log,

		RefuseUnknownStart: cfg.Compressor.RefuseUnknownStart,
	})
}

// BuildSensors instantiates a driver per sensor configuration.
func BuildSensors(cfgs []config.SensorConfig, simulate bool) ([]sensor.Sensor, error) {
	sensors := make([]sensor.Sensor, 0, len(cfgs))
	for _, sc := range cfgs {
		if simulate {
			sensors = append(sensors, sensor.NewStatic(sc.Name, sc.Value))
			continue
		}
		switch sc.Kind {
		case models.KindI2C:
			sensors = append(sensors, sensor.NewAM2320(sc.Name, sc.Bus, sc.Address))
		case models.KindOneWire:
			sensors = append(sensors, sensor.NewDS18B20(sc.Name, sc.Device))
		case models.KindStatic:
			sensors = append(sensors, sensor.NewStatic(sc.Name, sc.Value))
		default:
			return nil, fmt.Errorf("sensor %q: unknown kind %q", sc.Name, sc.Kind)
		}
	}
	return sensors, nil
}
