// Package pubsub publishes task-change events to an MQTT broker using
// the topic convention {prefix}/user/{owner_id}/tasks.
package pubsub

import "time"

// Event types carried in the payload's event field.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// Publisher emits task-change events. Publishing is fire-and-forget:
// no delivery confirmation reaches the caller, and publishing while
// disconnected is a silent skip.
type Publisher interface {
	PublishTaskEvent(ownerID, eventType string, data any)
}

// Payload is the JSON body published for each event.
type Payload struct {
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// NewPayload builds the event body, stamping now in RFC 3339.
func NewPayload(eventType string, data any) Payload {
	return Payload{
		Event:     eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// NopPublisher drops every event. Used when the broker is disabled
// and in tests.
type NopPublisher struct{}

func (NopPublisher) PublishTaskEvent(string, string, any) {}
