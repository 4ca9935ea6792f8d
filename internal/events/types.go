package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	PollSucceeded          EventType = "poll_succeeded"
	PollFailed             EventType = "poll_failed"
	PollRecovered          EventType = "poll_recovered"
	InterfaceStatusChanged EventType = "interface_status_changed"
)

// Event is the payload published through the bus.
type Event struct {
	ID         string        `json:"id"`
	Type       EventType     `json:"type"`
	Router     string        `json:"router,omitempty"`
	Interface  string        `json:"interface,omitempty"`
	Previous   string        `json:"previous,omitempty"`
	Current    string        `json:"current,omitempty"`
	Message    string        `json:"message,omitempty"`
	Interfaces int           `json:"interfaces"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

// NewEvent stamps an event of type t with a fresh ID and the current time.
func NewEvent(t EventType) Event {
	return Event{ID: uuid.NewString(), Type: t, Timestamp: time.Now().UTC()}
}
