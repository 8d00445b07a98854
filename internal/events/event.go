// Package events carries job change notifications between the API service
// and long-lived clients over a RabbitMQ topic exchange.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type names a kind of job change.
type Type string

const (
	TypeCreated Type = "created"
	TypeUpdated Type = "updated"
	TypeDeleted Type = "deleted"
)

// RoutingPrefix prefixes every routing key; subscribers bind "job.*".
const RoutingPrefix = "job."

// ContentType is set on every published event.
const ContentType = "application/json"

var (
	// ErrInvalidEvent is returned when an event body cannot be used
	ErrInvalidEvent = errors.New("invalid event")
)

// Event describes one change to a job.
type Event struct {
	Type       Type      `json:"type"`
	JobID      string    `json:"job_id"`
	UserID     string    `json:"user_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New returns an event stamped with the current time.
func New(t Type, jobID, userID string) Event {
	return Event{Type: t, JobID: jobID, UserID: userID, OccurredAt: time.Now().UTC()}
}

// RoutingKey is the key the event is published under.
func (e Event) RoutingKey() string {
	return RoutingPrefix + string(e.Type)
}

// Validate checks that the event has a known type and a job id.
func (e Event) Validate() error {
	switch e.Type {
	case TypeCreated, TypeUpdated, TypeDeleted:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if e.JobID == "" {
		return fmt.Errorf("%w: missing job_id", ErrInvalidEvent)
	}
	return nil
}

// Decode parses and validates an event body.
func Decode(body []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}
