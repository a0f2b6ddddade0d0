// Package api exposes the controller over HTTP.
package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/ponytojas/go-freezer-control/internal/models"
)

// Controller is the controller surface served over HTTP.
type Controller interface {
	Poll(ctx context.Context) models.AggregateState
	Start(ctx context.Context) (models.Outcome, error)
	Stop(ctx context.Context) (models.Outcome, error)
	Aggregate() models.AggregateState
	Actuator() models.ActuatorState
	MinRun() time.Duration
}

// RouteManager handles all API routes
type RouteManager struct {
	ctrl   Controller
	log    *slog.Logger
	Router *mux.Router
}

// NewRouteManager creates a RouteManager and registers its routes
func NewRouteManager(ctrl Controller, log *slog.Logger) *RouteManager {
	rm := &RouteManager{
		ctrl:   ctrl,
		log:    log,
		Router: mux.NewRouter(),
	}
	rm.setup()
	return rm
}

func (rm *RouteManager) setup() {
	r := rm.Router
	r.HandleFunc("/health", rm.healthHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/temperature", rm.temperatureHandler).Methods(http.MethodGet)
	api.HandleFunc("/state", rm.stateHandler).Methods(http.MethodGet)
	api.HandleFunc("/compressor/start", rm.startHandler).Methods(http.MethodPost)
	api.HandleFunc("/compressor/stop", rm.stopHandler).Methods(http.MethodPost)
}

// Handler returns the router wrapped with an access log written to w
func (rm *RouteManager) Handler(w io.Writer) http.Handler {
	return handlers.LoggingHandler(w, rm.Router)
}

func (rm *RouteManager) healthHandler(w http.ResponseWriter, r *http.Request) {
	rm.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rm *RouteManager) temperatureHandler(w http.ResponseWriter, r *http.Request) {
	state := rm.ctrl.Poll(r.Context())
	rm.writeJSON(w, http.StatusOK, state)
}

type stateResponse struct {
	Aggregate     models.AggregateState `json:"aggregate"`
	Actuator      models.ActuatorState  `json:"actuator"`
	MinRunSeconds float64               `json:"min_run_seconds"`
}

func (rm *RouteManager) stateHandler(w http.ResponseWriter, r *http.Request) {
	rm.writeJSON(w, http.StatusOK, stateResponse{
		Aggregate:     rm.ctrl.Aggregate(),
		Actuator:      rm.ctrl.Actuator(),
		MinRunSeconds: rm.ctrl.MinRun().Seconds(),
	})
}

type outcomeResponse struct {
	Outcome     models.OutcomeKind   `json:"outcome"`
	WaitSeconds float64              `json:"wait_seconds,omitempty"`
	Error       string               `json:"error,omitempty"`
	Actuator    models.ActuatorState `json:"actuator"`
}

func (rm *RouteManager) startHandler(w http.ResponseWriter, r *http.Request) {
	out, err := rm.ctrl.Start(r.Context())
	rm.writeOutcome(w, out, err)
}

func (rm *RouteManager) stopHandler(w http.ResponseWriter, r *http.Request) {
	out, err := rm.ctrl.Stop(r.Context())
	rm.writeOutcome(w, out, err)
}

func (rm *RouteManager) writeOutcome(w http.ResponseWriter, out models.Outcome, err error) {
	resp := outcomeResponse{Outcome: out.Kind, Actuator: rm.ctrl.Actuator()}
	status := http.StatusOK
	switch out.Kind {
	case models.Refused:
		status = http.StatusConflict
		resp.WaitSeconds = out.WaitSeconds()
		w.Header().Set("Retry-After", retryAfter(out.Wait))
	case models.Failed:
		status = http.StatusServiceUnavailable
	}
	if err != nil {
		resp.Error = err.Error()
	}
	rm.writeJSON(w, status, resp)
}

func (rm *RouteManager) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		rm.log.Error("failed to encode response", "err", err)
	}
}

// retryAfter rounds d up to whole seconds.
func retryAfter(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	return strconv.FormatInt(secs, 10)
}
