package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ponytojas/go-freezer-control/config"
	"github.com/ponytojas/go-freezer-control/internal/models"
)

// AverageSensor is the sensor column value of the aggregate row written
// for every poll.
const AverageSensor = "_average"

// TimescaleDB handles database operations
type TimescaleDB struct {
	pool     *pgxpool.Pool
	readings string
	events   string
	log      *slog.Logger
}

// NewTimescaleDB creates a new TimescaleDB instance
func NewTimescaleDB(ctx context.Context, cfg *config.Config, log *slog.Logger) (*TimescaleDB, error) {
	pool, err := pgxpool.New(ctx, cfg.GetDBConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return &TimescaleDB{
		pool:     pool,
		readings: pgx.Identifier{cfg.Timescale.TableName}.Sanitize(),
		events:   pgx.Identifier{cfg.Timescale.EventsTable}.Sanitize(),
		log:      log,
	}, nil
}

// Close closes the database connection
func (db *TimescaleDB) Close() {
	db.pool.Close()
}

// InitializeTable creates the readings hypertable and the events table if
// they don't exist
func (db *TimescaleDB) InitializeTable(ctx context.Context) error {
	for _, stmt := range schema(db.readings, db.events) {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	db.log.Info("tables ready", "readings", db.readings, "events", db.events)
	return nil
}

func schema(readings, events string) []string {
	return []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				time TIMESTAMPTZ NOT NULL,
				sensor TEXT NOT NULL,
				kind TEXT,
				temperature DOUBLE PRECISION,
				humidity DOUBLE PRECISION,
				error TEXT
			)`, readings),
		fmt.Sprintf(`SELECT create_hypertable('%s', 'time', if_not_exists => TRUE)`, readings),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				time TIMESTAMPTZ NOT NULL,
				id UUID PRIMARY KEY,
				command TEXT NOT NULL,
				outcome TEXT NOT NULL,
				wait_seconds DOUBLE PRECISION,
				is_on BOOLEAN NOT NULL,
				on_since TIMESTAMPTZ,
				off_since TIMESTAMPTZ,
				error TEXT
			)`, events),
	}
}

// RecordPoll writes one row per sensor and one aggregate row
func (db *TimescaleDB) RecordPoll(ctx context.Context, state models.AggregateState) error {
	insert := fmt.Sprintf(`
		INSERT INTO %s (time, sensor, kind, temperature, humidity, error)
		VALUES ($1, $2, $3, $4, $5, $6)`, db.readings)

	batch := &pgx.Batch{}
	for _, row := range pollRows(state) {
		batch.Queue(insert, row...)
	}
	if err := db.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert readings: %w", err)
	}
	return nil
}

// RecordEvent writes one actuator event
func (db *TimescaleDB) RecordEvent(ctx context.Context, event models.ActuatorEvent) error {
	_, err := db.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (time, id, command, outcome, wait_seconds, is_on, on_since, off_since, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, db.events), eventRow(event)...)
	if err != nil {
		return fmt.Errorf("failed to insert actuator event: %w", err)
	}
	return nil
}

func pollRows(state models.AggregateState) [][]any {
	rows := make([][]any, 0, len(state.Sensors)+1)
	for _, r := range state.Sensors {
		rows = append(rows, []any{
			state.Time, r.Name, string(r.Kind), r.Temperature.Ptr(), nil, errText(r.Err),
		})
	}
	rows = append(rows, []any{
		state.Time, AverageSensor, nil, state.AverageTemperature.Ptr(), state.Humidity.Ptr(), nil,
	})
	return rows
}

func eventRow(e models.ActuatorEvent) []any {
	var wait *float64
	if e.Outcome.Kind == models.Refused {
		s := e.Outcome.WaitSeconds()
		wait = &s
	}
	return []any{
		e.Time, e.ID, e.Command, string(e.Outcome.Kind), wait, e.State.IsOn,
		timeOrNil(e.State.OnSince), timeOrNil(e.State.OffSince), errText(e.Err),
	}
}

func errText(err error) *string {
	if err == nil {
		return nil
	}
	s := err.Error()
	return &s
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
