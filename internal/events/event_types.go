package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a user lifecycle event.
type EventType string

const (
	EventUserRegistered EventType = "user_registered"
	EventUserDeleted    EventType = "user_deleted"
)

// Event is a user lifecycle event emitted by the user service.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent stamps a fresh event id and the given time in UTC.
func NewEvent(eventType EventType, userID string, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Timestamp: at.UTC(),
		Payload:   payload,
	}
}

type UserRegisteredPayload struct {
	Email string `json:"email"`
}

type UserDeletedPayload struct {
	Email          string `json:"email"`
	AlreadyDeleted bool   `json:"already_deleted"`
}
