package reservo

import (
	"fmt"

	"github.com/google/uuid"
)

// Command represents a request to change an aggregate.
// Commands are created at admission with a fresh identifier and are never
// modified afterwards.
type Command struct {
	// Kind selects the decision rule (e.g., "CreateUser").
	Kind string `json:"kind"`

	// ID uniquely identifies this command instance.
	ID uuid.UUID `json:"id"`

	// AggregateKey is the partitioning and ordering key, the user or
	// reservation id.
	AggregateKey string `json:"aggregateKey"`

	// Data holds the command fields.
	Data StateMap `json:"data"`
}

// NewCommand creates a Command with a fresh identifier.
func NewCommand(kind, aggregateKey string, data StateMap) Command {
	return Command{
		Kind:         kind,
		ID:           uuid.New(),
		AggregateKey: aggregateKey,
		Data:         data,
	}
}

// WithData returns a copy of the command with key set in its data.
func (c Command) WithData(key string, v Value) Command {
	c.Data = c.Data.With(key, v)
	return c
}

// String returns a short description used in logs.
func (c Command) String() string {
	return fmt.Sprintf("%s(%s)@%s", c.Kind, c.ID, c.AggregateKey)
}

// Event is an immutable fact about an accepted change.
type Event struct {
	Kind         string    `json:"kind"`
	ID           uuid.UUID `json:"id"`
	AggregateKey string    `json:"aggregateKey"`
	Data         StateMap  `json:"data"`
}

// NewEvent creates an Event with a fresh identifier.
func NewEvent(kind, aggregateKey string, data StateMap) Event {
	return Event{
		Kind:         kind,
		ID:           uuid.New(),
		AggregateKey: aggregateKey,
		Data:         data,
	}
}

// String returns a short description used in logs.
func (e Event) String() string {
	return fmt.Sprintf("%s(%s)@%s", e.Kind, e.ID, e.AggregateKey)
}

// EventTypes returns the kinds of the given events in order.
func EventTypes(events []Event) []string {
	kinds := make([]string, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}
