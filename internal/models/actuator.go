package models

import (
	"time"

	"github.com/google/uuid"
)

// ActuatorState mirrors the verified physical state of the compressor relay.
type ActuatorState struct {
	IsOn bool `json:"is_on"`
	// OnSince is set on every off->on transition and kept after stopping.
	OnSince  time.Time `json:"on_since"`
	OffSince time.Time `json:"off_since"`
}

// OutcomeKind is the result class of a start or stop request.
type OutcomeKind string

const (
	Started        OutcomeKind = "started"
	AlreadyRunning OutcomeKind = "already_running"
	Stopped        OutcomeKind = "stopped"
	AlreadyStopped OutcomeKind = "already_stopped"
	Refused        OutcomeKind = "refused"
	Failed         OutcomeKind = "failed"
)

// Outcome is returned by start and stop. Wait is only set for Refused and
// tells the caller how long to hold off before retrying the stop.
type Outcome struct {
	Kind OutcomeKind   `json:"outcome"`
	Wait time.Duration `json:"-"`
}

// WaitSeconds returns Wait in seconds.
func (o Outcome) WaitSeconds() float64 {
	return o.Wait.Seconds()
}

// ActuatorEvent records one start or stop request and what came of it.
type ActuatorEvent struct {
	ID      uuid.UUID     `json:"id"`
	Command string        `json:"command"`
	Outcome Outcome       `json:"-"`
	Err     error         `json:"-"`
	State   ActuatorState `json:"state"`
	Time    time.Time     `json:"time"`
}

// NewActuatorEvent stamps an event with a fresh id.
func NewActuatorEvent(command string, out Outcome, err error, state ActuatorState, t time.Time) ActuatorEvent {
	return ActuatorEvent{
		ID:      uuid.New(),
		Command: command,
		Outcome: out,
		Err:     err,
		State:   state,
		Time:    t,
	}
}

// ErrorString returns the event error text, or "" when none.
func (e ActuatorEvent) ErrorString() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// EventMessage is the wire form of an ActuatorEvent.
type EventMessage struct {
	ID          string        `json:"id"`
	Command     string        `json:"command"`
	Outcome     OutcomeKind   `json:"outcome"`
	WaitSeconds float64       `json:"wait_seconds,omitempty"`
	Error       string        `json:"error,omitempty"`
	State       ActuatorState `json:"state"`
	Time        time.Time     `json:"time"`
}

// Message converts the event to its wire form.
func (e ActuatorEvent) Message() EventMessage {
	return EventMessage{
		ID:          e.ID.String(),
		Command:     e.Command,
		Outcome:     e.Outcome.Kind,
		WaitSeconds: e.Outcome.WaitSeconds(),
		Error:       e.ErrorString(),
		State:       e.State,
		Time:        e.Time,
	}
}
