package domain

import (
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
)

// LivenessSession is the transient record of one liveness attempt.
// It lives in the session store until it expires or is closed.
type LivenessSession struct {
	ID          uuid.UUID            `json:"id"`
	ClientID    string               `json:"client_id"`
	Preview     liveness.Rect        `json:"preview"`
	Framing     liveness.FramingMode `json:"framing"`
	State       liveness.Session     `json:"state"`
	Frames      int                  `json:"frames"`
	ResultToken string               `json:"result_token,omitempty"`
	ExpiresAt   time.Time            `json:"expires_at"`
	CreatedAt   time.Time            `json:"created_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// IsExpired checks if the session has expired
func (s *LivenessSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// TTL returns the remaining lifetime, never negative.
func (s *LivenessSession) TTL() time.Duration {
	if d := time.Until(s.ExpiresAt); d > 0 {
		return d
	}
	return 0
}

// Session-specific errors
var (
	ErrSessionNotFound = &AppError{
		Code:       "SESSION_NOT_FOUND",
		Message:    "Liveness session not found or expired",
		StatusCode: 404,
	}

	ErrSessionExpired = &AppError{
		Code:       "SESSION_EXPIRED",
		Message:    "Liveness session has expired",
		StatusCode: 410,
	}

	ErrSessionComplete = &AppError{
		Code:       "SESSION_COMPLETE",
		Message:    "Liveness session is already complete",
		StatusCode: 409,
	}

	ErrInvalidChallengeOrder = &AppError{
		Code:       "INVALID_CHALLENGE_ORDER",
		Message:    "Challenge order contains unknown or repeated challenges",
		StatusCode: 422,
	}
)
