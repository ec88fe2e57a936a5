package webhook

import (
	"time"

	"github.com/google/uuid"
)

// Event types delivered to WEBHOOK_URL.
const (
	EventLivenessCompleted = "liveness.completed"
	EventLivenessReset     = "liveness.reset"
)

type EventPayload struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	SessionID uuid.UUID   `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
}

// Job is a delivery that failed and waits in the retry queue.
type Job struct {
	ID          uuid.UUID `json:"id"`
	EventType   string    `json:"event_type"`
	Payload     []byte    `json:"payload"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	NextRetryAt time.Time `json:"next_retry_at"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
