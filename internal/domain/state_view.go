package domain

import (
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
)

// StateView is what a client renders after every frame.
type StateView struct {
	SessionID        uuid.UUID                `json:"session_id" cbor:"session_id"`
	Phase            liveness.Phase           `json:"phase" cbor:"phase"`
	FaceDetected     bool                     `json:"face_detected" cbor:"face_detected"`
	FaceTooClose     bool                     `json:"face_too_close" cbor:"face_too_close"`
	CurrentChallenge liveness.ChallengeKind   `json:"current_challenge,omitempty" cbor:"current_challenge,omitempty"`
	ChallengeIndex   int                      `json:"challenge_index" cbor:"challenge_index"`
	Challenges       []liveness.ChallengeKind `json:"challenges" cbor:"challenges"`
	Prompt           string                   `json:"prompt" cbor:"prompt"`
	Instruction      string                   `json:"instruction,omitempty" cbor:"instruction,omitempty"`
	Progress         float64                  `json:"progress" cbor:"progress"`
	Complete         bool                     `json:"complete" cbor:"complete"`
	Dropped          bool                     `json:"dropped" cbor:"dropped"`
	ResultToken      string                   `json:"result_token,omitempty" cbor:"result_token,omitempty"`
}

// NewStateView renders s through m.
func NewStateView(s *LivenessSession, m *liveness.Machine) *StateView {
	view := &StateView{
		SessionID:      s.ID,
		Phase:          s.State.Phase(),
		FaceDetected:   s.State.FaceDetected,
		FaceTooClose:   s.State.FaceTooClose,
		ChallengeIndex: s.State.CurrentIndex,
		Challenges:     s.State.Order,
		Prompt:         liveness.Prompt(s.State),
		Instruction:    m.Instruction(s.State),
		Progress:       s.State.Progress,
		Complete:       s.State.Complete,
		ResultToken:    s.ResultToken,
	}
	if kind, ok := s.State.CurrentChallenge(); ok {
		view.CurrentChallenge = kind
	}
	return view
}
