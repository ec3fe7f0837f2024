package model

import (
	"encoding/json"
	"time"
)

// EventKind tags the variant carried by an Event.
type EventKind string

const (
	EventContract   EventKind = "contract_event"
	EventDisconnect EventKind = "disconnect"
	EventTimeLeft   EventKind = "time_left"
	EventTerminated EventKind = "terminated"
)

// TerminationReason explains why a session ended.
type TerminationReason string

const (
	ReasonTimeout         TerminationReason = "timeout"
	ReasonCancelled       TerminationReason = "cancelled"
	ReasonRemoteClosed    TerminationReason = "remote_closed"
	ReasonStreamEnded     TerminationReason = "stream_ended"
	ReasonCompleted       TerminationReason = "completed"
	ReasonProtocolError   TerminationReason = "protocol_error"
	ReasonKeepAliveFailed TerminationReason = "keepalive_failed"
	ReasonInvalidState    TerminationReason = "invalid_state"
	ReasonHandshakeFailed TerminationReason = "handshake_failed"
	ReasonConnectFailed   TerminationReason = "connect_failed"
	ReasonBackpressure    TerminationReason = "backpressure"
)

// Clean reports whether the reason is a normal end of session.
func (r TerminationReason) Clean() bool {
	switch r {
	case ReasonTimeout, ReasonCancelled, ReasonRemoteClosed, ReasonStreamEnded, ReasonCompleted:
		return true
	default:
		return false
	}
}

// Termination is the payload of a terminated event.
type Termination struct {
	Reason TerminationReason `json:"reason"`
	Error  string            `json:"error,omitempty"`
}

// Event is everything a subscription session emits downstream. On the wire a
// time_left event carries whole seconds under time_left_seconds, zero included.
type Event struct {
	Kind        EventKind      `json:"kind"`
	SessionID   string         `json:"session_id"`
	Contract    *ContractEvent `json:"contract,omitempty"`
	TimeLeft    time.Duration  `json:"-"`
	Termination *Termination   `json:"termination,omitempty"`
}

func NewContractEvent(sessionID string, event ContractEvent) Event {
	return Event{Kind: EventContract, SessionID: sessionID, Contract: &event}
}

func NewDisconnect(sessionID string) Event {
	return Event{Kind: EventDisconnect, SessionID: sessionID}
}

func NewTimeLeft(sessionID string, remaining time.Duration) Event {
	if remaining < 0 {
		remaining = 0
	}
	return Event{Kind: EventTimeLeft, SessionID: sessionID, TimeLeft: remaining}
}

func NewTerminated(sessionID string, reason TerminationReason, err error) Event {
	term := &Termination{Reason: reason}
	if err != nil {
		term.Error = err.Error()
	}
	return Event{Kind: EventTerminated, SessionID: sessionID, Termination: term}
}

// TimeLeftSeconds returns the remaining time rounded to whole seconds.
func (e Event) TimeLeftSeconds() uint64 {
	if e.TimeLeft <= 0 {
		return 0
	}
	return uint64(e.TimeLeft.Round(time.Second) / time.Second)
}

type eventWire struct {
	eventAlias
	TimeLeftSeconds *uint64 `json:"time_left_seconds,omitempty"`
}

type eventAlias Event

// MarshalJSON encodes the event, writing time_left as whole seconds.
func (e Event) MarshalJSON() ([]byte, error) {
	wire := eventWire{eventAlias: eventAlias(e)}
	if e.Kind == EventTimeLeft {
		seconds := e.TimeLeftSeconds()
		wire.TimeLeftSeconds = &seconds
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes an event written by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire eventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*e = Event(wire.eventAlias)
	if wire.TimeLeftSeconds != nil {
		e.TimeLeft = time.Duration(*wire.TimeLeftSeconds) * time.Second
	}
	return nil
}
