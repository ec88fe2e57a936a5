package ws

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventChallengePassed  EventType = "challenge.passed"
	EventSessionReset     EventType = "session.reset"
	EventSessionCompleted EventType = "session.completed"
	EventSessionClosed    EventType = "session.closed"
)

type Event struct {
	SessionID uuid.UUID   `json:"session_id"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
