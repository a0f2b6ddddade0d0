package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ponytojas/go-freezer-control/internal/compressor"
	"github.com/ponytojas/go-freezer-control/internal/controller"
	"github.com/ponytojas/go-freezer-control/internal/logging"
	"github.com/ponytojas/go-freezer-control/internal/models"
	"github.com/ponytojas/go-freezer-control/internal/sensor"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newServer(t *testing.T) (*httptest.Server, *compressor.MemoryPin, *testClock) {
	t.Helper()
	pin := compressor.NewMemoryPin(false)
	clock := &testClock{t: time.Unix(1_700_000_000, 0)}
	ctrl, err := controller.New(controller.Config{
		Sensors: []sensor.Sensor{sensor.NewStatic("a", -18), sensor.NewStatic("b", 0)},
		Pin:     pin,
		Clock:   clock.Now,
		Logger:  logging.Discard(),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouteManager(ctrl, logging.Discard()).Handler(io.Discard))
	t.Cleanup(srv.Close)
	return srv, pin, clock
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestTemperature(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/temperature")
	require.NoError(t, err)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, -9.0, body["average_temperature"])
	assert.Len(t, body["sensors"], 2)
}

func TestStartStopRefused(t *testing.T) {
	srv, _, clock := newServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/compressor/start", "application/json", nil)
	require.NoError(t, err)
	var start outcomeResponse
	decode(t, resp, &start)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.Started, start.Outcome)
	assert.True(t, start.Actuator.IsOn)

	clock.Advance(100 * time.Second)
	resp, err = http.Post(srv.URL+"/api/v1/compressor/stop", "application/json", nil)
	require.NoError(t, err)
	var stop outcomeResponse
	decode(t, resp, &stop)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, models.Refused, stop.Outcome)
	assert.Equal(t, 200.0, stop.WaitSeconds)
	assert.Equal(t, "200", resp.Header.Get("Retry-After"))
}

func TestStartFailed(t *testing.T) {
	srv, pin, _ := newServer(t)
	pin.FailWrites(errors.New("relay gone"))

	resp, err := http.Post(srv.URL+"/api/v1/compressor/start", "application/json", nil)
	require.NoError(t, err)

	var body outcomeResponse
	decode(t, resp, &body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, models.Failed, body.Outcome)
	assert.Contains(t, body.Error, "relay gone")
	assert.False(t, body.Actuator.IsOn)
}

func TestState(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/state")
	require.NoError(t, err)

	var body stateResponse
	decode(t, resp, &body)
	assert.Equal(t, 300.0, body.MinRunSeconds)
	assert.False(t, body.Actuator.IsOn)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/compressor/start")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

var _ Controller = (*controller.Controller)(nil)

func TestRetryAfterRoundsUp(t *testing.T) {
	assert.Equal(t, "1", retryAfter(200*time.Millisecond))
	assert.Equal(t, "200", retryAfter(200*time.Second))
}
