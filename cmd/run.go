package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ponytojas/go-freezer-control/internal/api"
	"github.com/ponytojas/go-freezer-control/internal/controller"
	"github.com/ponytojas/go-freezer-control/internal/database"
	"github.com/ponytojas/go-freezer-control/internal/kafka"
	"github.com/ponytojas/go-freezer-control/internal/mqtt"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the controller: poll sensors and serve commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}
}

func run(ctx context.Context, opts *options) error {
	cfg, log := opts.cfg, opts.log
	log.Info("starting freezer controller")
	defer releaseGPIO(opts)

	ctrl, err := openController(opts)
	if err != nil {
		return err
	}

	if cfg.Database.Enabled {
		log.Info("connecting to TimescaleDB")
		db, err := database.NewTimescaleDB(ctx, cfg, log.With("component", "database"))
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.InitializeTable(ctx); err != nil {
			return err
		}
		ctrl.AddRecorder(db)
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, log.With("component", "kafka"))
		defer func() {
			if err := producer.Close(); err != nil {
				log.Warn("failed to close kafka producer", "err", err)
			}
		}()
		ctrl.AddRecorder(producer)
	}

	if cfg.MQTT.Enabled {
		client, err := mqtt.NewClient(cfg, ctrl, log.With("component", "mqtt"))
		if err != nil {
			return err
		}
		if err := client.Connect(); err != nil {
			return err
		}
		defer client.Disconnect()
		ctrl.AddRecorder(client)
	}

	if cfg.HTTP.Enabled {
		server := &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      api.NewRouteManager(ctrl, log.With("component", "api")).Handler(os.Stdout),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("serving HTTP API", "addr", cfg.HTTP.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	pollLoop(ctx, ctrl, cfg.Poll.Interval, log)
	log.Info("shutting down")
	return nil
}

// pollLoop publishes the poll taken while building the controller, then
// polls at a fixed interval until ctx is done. What to do with the
// temperature is left to whoever issues start and stop.
func pollLoop(ctx context.Context, ctrl *controller.Controller, interval time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	state := ctrl.Publish(ctx)
	for {
		actuator := ctrl.Actuator()
		log.Info("poll",
			"temperature", state.AverageTemperature,
			"humidity", state.Humidity,
			"valid_sensors", state.ValidCount(),
			"compressor_on", actuator.IsOn,
		)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		state = ctrl.Poll(ctx)
	}
}
