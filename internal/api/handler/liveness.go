package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/domain"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/service"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/token"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/ws"
)

var validate = validator.New()

// LivenessService interface for the service layer
type LivenessService interface {
	CreateSession(ctx context.Context, in service.CreateSessionInput) (*domain.LivenessSession, error)
	GetSession(ctx context.Context, id uuid.UUID, clientID string) (*domain.LivenessSession, error)
	View(ctx context.Context, id uuid.UUID) (*domain.StateView, error)
	DeleteSession(ctx context.Context, id uuid.UUID, clientID string) error
	SubmitFaces(ctx context.Context, id uuid.UUID, faces []liveness.FaceObservation) (*domain.StateView, error)
	SubmitImage(ctx context.Context, id uuid.UUID, image []byte) (*domain.StateView, error)
	Reset(ctx context.Context, id uuid.UUID) (*domain.StateView, error)
	VerifyToken(signed, clientID string) (*token.ResultClaims, error)
}

// LivenessHandler serves the API key protected session routes
type LivenessHandler struct {
	service LivenessService
	logger  *slog.Logger
}

func NewLivenessHandler(service LivenessService, logger *slog.Logger) *LivenessHandler {
	return &LivenessHandler{
		service: service,
		logger:  logger,
	}
}

// PreviewRequest is the target region, in the coordinates of the frames
// the client will submit.
type PreviewRequest struct {
	MinX   float64 `json:"min_x"`
	MinY   float64 `json:"min_y"`
	Width  float64 `json:"width" validate:"gt=0"`
	Height float64 `json:"height" validate:"gt=0"`
}

// CreateSessionRequest request for creating a liveness session
type CreateSessionRequest struct {
	Challenges []string        `json:"challenges" validate:"omitempty,max=5,unique,dive,oneof=BLINK TURN_HEAD_LEFT TURN_HEAD_RIGHT NOD SMILE"`
	Shuffle    *bool           `json:"shuffle"`
	Framing    string          `json:"framing" validate:"omitempty,oneof=containment center"`
	Preview    *PreviewRequest `json:"preview" validate:"omitempty"`
}

// SessionResponse describes a liveness session
type SessionResponse struct {
	SessionID  string                   `json:"session_id"`
	Framing    liveness.FramingMode     `json:"framing"`
	Preview    liveness.Rect            `json:"preview"`
	Challenges []liveness.ChallengeKind `json:"challenges"`
	Frames     int                      `json:"frames"`
	ExpiresAt  string                   `json:"expires_at"`
	CreatedAt  string                   `json:"created_at"`
	State      *domain.StateView        `json:"state"`
}

// VerifyTokenRequest request for result token verification
type VerifyTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// VerifyTokenResponse carries the claims of a valid result token
type VerifyTokenResponse struct {
	Valid      bool     `json:"valid"`
	Live       bool     `json:"live"`
	SessionID  string   `json:"session_id"`
	ClientID   string   `json:"client_id"`
	Challenges []string `json:"challenges"`
	IssuedAt   string   `json:"issued_at"`
	ExpiresAt  string   `json:"expires_at"`
}

func toSessionResponse(s *domain.LivenessSession, view *domain.StateView) SessionResponse {
	return SessionResponse{
		SessionID:  s.ID.String(),
		Framing:    s.Framing,
		Preview:    s.Preview,
		Challenges: s.State.Order,
		Frames:     s.Frames,
		ExpiresAt:  s.ExpiresAt.Format(time.RFC3339),
		CreatedAt:  s.CreatedAt.Format(time.RFC3339),
		State:      view,
	}
}

// CreateSession POST /v1/liveness/sessions - start a liveness attempt
func (h *LivenessHandler) CreateSession(c *fiber.Ctx) error {
	// 1. Extract client from context (already authenticated by middleware)
	clientID, err := middleware.GetClientID(c)
	if err != nil {
		return err
	}

	// 2. Parse and validate body; an empty body keeps every default
	var req CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return domain.ErrValidationFailed.WithError(err)
		}
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	// 3. Call service
	in := service.CreateSessionInput{
		ClientID: clientID,
		Shuffle:  req.Shuffle,
		Framing:  liveness.FramingMode(req.Framing),
	}
	for _, ch := range req.Challenges {
		in.Order = append(in.Order, liveness.ChallengeKind(ch))
	}
	if req.Preview != nil {
		in.Preview = &liveness.Rect{
			MinX:   req.Preview.MinX,
			MinY:   req.Preview.MinY,
			Width:  req.Preview.Width,
			Height: req.Preview.Height,
		}
	}

	session, err := h.service.CreateSession(c.Context(), in)
	if err != nil {
		return err
	}

	view, err := h.service.View(c.Context(), session.ID)
	if err != nil {
		return err
	}

	h.logger.Info("liveness session created",
		"session_id", session.ID,
		"client_id", clientID,
		"challenges", session.State.Order,
	)

	return c.Status(fiber.StatusCreated).JSON(toSessionResponse(session, view))
}

// GetSession GET /v1/liveness/sessions/:id - current state of a session
func (h *LivenessHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.ownedSession(c)
	if err != nil {
		return err
	}

	view, err := h.service.View(c.Context(), session.ID)
	if err != nil {
		return err
	}

	return c.JSON(toSessionResponse(session, view))
}

// DeleteSession DELETE /v1/liveness/sessions/:id - discard a session
func (h *LivenessHandler) DeleteSession(c *fiber.Ctx) error {
	clientID, err := middleware.GetClientID(c)
	if err != nil {
		return err
	}
	id, err := parseSessionID(c)
	if err != nil {
		return err
	}

	if err := h.service.DeleteSession(c.Context(), id, clientID); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// VerifyToken POST /v1/liveness/tokens/verify - check a result token
func (h *LivenessHandler) VerifyToken(c *fiber.Ctx) error {
	clientID, err := middleware.GetClientID(c)
	if err != nil {
		return err
	}

	var req VerifyTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrValidationFailed.WithError(err)
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	claims, err := h.service.VerifyToken(req.Token, clientID)
	if err != nil {
		return err
	}

	resp := VerifyTokenResponse{
		Valid:      true,
		Live:       claims.Live,
		SessionID:  claims.SessionID.String(),
		ClientID:   claims.ClientID,
		Challenges: claims.Challenges,
	}
	if claims.IssuedAt != nil {
		resp.IssuedAt = claims.IssuedAt.Format(time.RFC3339)
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Format(time.RFC3339)
	}

	return c.JSON(resp)
}

// PrepareWatch binds a watcher socket to a session owned by the client.
func (h *LivenessHandler) PrepareWatch(c *fiber.Ctx) error {
	session, err := h.ownedSession(c)
	if err != nil {
		return err
	}
	c.Locals(ws.LocalSessionID, session.ID)
	return c.Next()
}

func (h *LivenessHandler) ownedSession(c *fiber.Ctx) (*domain.LivenessSession, error) {
	clientID, err := middleware.GetClientID(c)
	if err != nil {
		return nil, err
	}
	id, err := parseSessionID(c)
	if err != nil {
		return nil, err
	}
	return h.service.GetSession(c.Context(), id, clientID)
}

func parseSessionID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, domain.ErrValidationFailed.WithError(errors.New("session id must be a UUID"))
	}
	return id, nil
}
