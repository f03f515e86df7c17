package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType names a domain event.
type EventType string

const (
	EventUserRegistered EventType = "user.registered"
	EventUserDeleted    EventType = "user.deleted"
	EventExpenseCreated EventType = "expense.created"
	EventExpenseUpdated EventType = "expense.updated"
	EventExpenseDeleted EventType = "expense.deleted"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventUserRegistered, EventUserDeleted, EventExpenseCreated, EventExpenseUpdated, EventExpenseDeleted:
		return true
	}
	return false
}

// Event is a lightweight notification. Consumers fetch current state from
// the store when they need more than the ids.
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"userId"`
	ExpenseID string    `json:"expenseId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(t EventType, userID, expenseID string) *Event {
	return &Event{
		Type:      t,
		UserID:    userID,
		ExpenseID: expenseID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes and checks an event body.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if !e.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.UserID == "" {
		return nil, errors.New("event without userId")
	}
	return &e, nil
}
