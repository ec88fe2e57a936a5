package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/domain"
)

// SessionStore keeps liveness sessions for the lifetime of one attempt.
// Implementations must be safe for concurrent use and return copies, so a
// caller mutating a session never changes what another caller reads.
type SessionStore interface {
	Create(ctx context.Context, session *domain.LivenessSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LivenessSession, error)
	Update(ctx context.Context, session *domain.LivenessSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

func cloneSession(s *domain.LivenessSession) *domain.LivenessSession {
	out := *s
	if s.State.Order != nil {
		out.State.Order = append(s.State.Order[:0:0], s.State.Order...)
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
