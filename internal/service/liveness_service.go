package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/audit"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/domain"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/provider"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/token"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/webhook"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/ws"
)

const webhookTimeout = 15 * time.Second

type SessionRepositoryInterface interface {
	Create(ctx context.Context, session *domain.LivenessSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.LivenessSession, error)
	Update(ctx context.Context, session *domain.LivenessSession) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EventPublisher receives session events for live watchers.
type EventPublisher interface {
	Publish(sessionID uuid.UUID, eventType ws.EventType, data interface{})
}

// Notifier delivers session events to the relying party.
type Notifier interface {
	Send(ctx context.Context, event webhook.EventPayload) error
}

// Options are the service wide defaults for new sessions.
type Options struct {
	Preview          liveness.Rect
	Framing          liveness.FramingMode
	EdgeMargin       float64
	TooCloseMargin   float64
	SessionTTL       time.Duration
	Shuffle          bool
	FrameMinInterval time.Duration
	CompletionDelay  time.Duration
}

// CreateSessionInput overrides the defaults for one session. Zero values
// keep the service defaults.
type CreateSessionInput struct {
	ClientID string
	Order    []liveness.ChallengeKind
	Shuffle  *bool
	Framing  liveness.FramingMode
	Preview  *liveness.Rect
}

// gate serialises frames of one session. expiresAt mirrors the session and
// is only touched while mu is held.
type gate struct {
	mu        sync.Mutex
	limiter   *rate.Limiter
	expiresAt time.Time
}

type LivenessService struct {
	store    SessionRepositoryInterface
	catalog  *liveness.Catalog
	detector provider.FaceDetector
	tokens   *token.ResultService
	events   EventPublisher
	notifier Notifier
	audit    audit.Logger
	logger   *slog.Logger
	opts     Options
	validate *validator.Validate

	gatesMu sync.Mutex
	gates   map[uuid.UUID]*gate

	now     func() time.Time
	shuffle func([]liveness.ChallengeKind)
}

func NewLivenessService(
	store SessionRepositoryInterface,
	catalog *liveness.Catalog,
	tokens *token.ResultService,
	opts Options,
	logger *slog.Logger,
) *LivenessService {
	if opts.Framing == "" {
		opts.Framing = liveness.FramingContainment
	}
	return &LivenessService{
		store:    store,
		catalog:  catalog,
		tokens:   tokens,
		audit:    &audit.NoOpLogger{},
		logger:   logger.With("component", "liveness_service"),
		opts:     opts,
		validate: validator.New(),
		gates:    make(map[uuid.UUID]*gate),
		now:      time.Now,
		shuffle: func(order []liveness.ChallengeKind) {
			rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		},
	}
}

// WithDetector enables image submission. A nil detector disables it.
func (s *LivenessService) WithDetector(d provider.FaceDetector) *LivenessService {
	s.detector = d
	return s
}

func (s *LivenessService) WithEvents(p EventPublisher) *LivenessService {
	s.events = p
	return s
}

func (s *LivenessService) WithNotifier(n Notifier) *LivenessService {
	s.notifier = n
	return s
}

func (s *LivenessService) WithAudit(l audit.Logger) *LivenessService {
	s.audit = l
	return s
}

// CreateSession starts a new liveness attempt for a client
func (s *LivenessService) CreateSession(ctx context.Context, in CreateSessionInput) (*domain.LivenessSession, error) {
	if in.ClientID == "" {
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("client id is required"))
	}

	preview := s.opts.Preview
	if in.Preview != nil {
		preview = *in.Preview
	}
	if preview.Width <= 0 || preview.Height <= 0 {
		return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("preview must have a positive size"))
	}

	mode := in.Framing
	if mode == "" {
		mode = s.opts.Framing
	}
	if _, err := liveness.NewFraming(mode, preview, s.opts.EdgeMargin); err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}

	order := slices.Clone(in.Order)
	if len(order) == 0 {
		order = s.catalog.Order()
	}
	shuffle := s.opts.Shuffle
	if in.Shuffle != nil {
		shuffle = *in.Shuffle
	}
	if shuffle {
		s.shuffle(order)
	}

	state, err := s.machine(mode, preview).NewSession(order)
	if err != nil {
		return nil, domain.ErrInvalidChallengeOrder.WithError(err)
	}

	now := s.now().UTC()
	session := &domain.LivenessSession{
		ID:        uuid.New(),
		ClientID:  in.ClientID,
		Preview:   preview,
		Framing:   mode,
		State:     state,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.SessionTTL),
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("client %s: create session: %w", in.ClientID, err)
	}

	s.record(ctx, session, audit.Event{EventType: audit.EventSessionCreated, Success: true})
	return session, nil
}

// GetSession returns the session if it belongs to clientID.
func (s *LivenessService) GetSession(ctx context.Context, id uuid.UUID, clientID string) (*domain.LivenessSession, error) {
	session, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.ClientID != clientID {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// View returns the current state view of a session.
func (s *LivenessService) View(ctx context.Context, id uuid.UUID) (*domain.StateView, error) {
	session, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(session), nil
}

// DeleteSession discards a session owned by clientID.
func (s *LivenessService) DeleteSession(ctx context.Context, id uuid.UUID, clientID string) error {
	session, err := s.GetSession(ctx, id, clientID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("session %s: delete: %w", id, err)
	}
	s.dropGate(id)
	s.publish(id, ws.EventSessionClosed, nil)
	s.record(ctx, session, audit.Event{EventType: audit.EventSessionDeleted, Success: true})
	return nil
}

// SubmitFaces applies one frame of detector output to the session.
func (s *LivenessService) SubmitFaces(ctx context.Context, id uuid.UUID, faces []liveness.FaceObservation) (*domain.StateView, error) {
	for i := range faces {
		if err := s.validate.Struct(faces[i]); err != nil {
			return nil, domain.ErrValidationFailed.WithError(fmt.Errorf("face %d: %w", i, err))
		}
	}
	return s.submit(ctx, id, func(context.Context, *domain.LivenessSession) ([]liveness.FaceObservation, error) {
		return faces, nil
	})
}

// SubmitImage runs server side detection on image and applies the result.
func (s *LivenessService) SubmitImage(ctx context.Context, id uuid.UUID, image []byte) (*domain.StateView, error) {
	if s.detector == nil {
		return nil, domain.ErrDetectorUnavailable
	}
	return s.submit(ctx, id, s.detect(image))
}

func (s *LivenessService) detect(image []byte) func(context.Context, *domain.LivenessSession) ([]liveness.FaceObservation, error) {
	return func(ctx context.Context, session *domain.LivenessSession) ([]liveness.FaceObservation, error) {
		start := s.now()
		faces, err := s.detector.DetectFaces(ctx, image)

		event := audit.Event{
			EventType: audit.EventImageDetected,
			Provider:  s.detector.Name(),
			Success:   err == nil,
			Metadata: map[string]string{
				"faces":       fmt.Sprint(len(faces)),
				"duration_ms": fmt.Sprint(s.now().Sub(start).Milliseconds()),
			},
		}
		if err != nil {
			event.Error = err.Error()
		}
		s.record(ctx, session, event)

		if err != nil {
			return nil, mapDetectorError(err)
		}
		return faces, nil
	}
}

func mapDetectorError(err error) error {
	switch {
	case errors.Is(err, provider.ErrInvalidImage):
		return domain.ErrInvalidImage.WithError(err)
	case errors.Is(err, provider.ErrThrottled):
		return domain.ErrProviderRateLimited.WithError(err)
	case errors.Is(err, provider.ErrUnavailable):
		return domain.ErrDetectorUnavailable.WithError(err)
	default:
		return domain.ErrDetectionFailed.WithError(err)
	}
}

// submit runs one frame through the session. A frame that arrives while the
// previous one is still in flight, or sooner than the minimum interval, is
// dropped and answered with the current state.
func (s *LivenessService) submit(
	ctx context.Context,
	id uuid.UUID,
	faces func(context.Context, *domain.LivenessSession) ([]liveness.FaceObservation, error),
) (*domain.StateView, error) {
	g := s.gate(id)
	if !g.mu.TryLock() {
		return s.dropped(ctx, id)
	}
	defer g.mu.Unlock()

	if g.limiter != nil && !g.limiter.Allow() {
		return s.dropped(ctx, id)
	}

	session, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionExpired) {
			s.dropGate(id)
		}
		return nil, err
	}
	g.expiresAt = session.ExpiresAt
	if session.State.Complete {
		return s.view(session), nil
	}

	found, err := faces(ctx, session)
	if err != nil {
		return nil, err
	}

	prev := session.State
	session.State = s.machineFor(session).Process(prev, liveness.InputFromFaces(found))
	session.Frames++

	if session.State.Complete {
		if err := s.complete(session); err != nil {
			return nil, err
		}
	}

	if err := s.store.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("session %s: update: %w", id, err)
	}

	s.afterTransition(ctx, session, prev)
	return s.view(session), nil
}

func (s *LivenessService) dropped(ctx context.Context, id uuid.UUID) (*domain.StateView, error) {
	view, err := s.View(ctx, id)
	if err != nil {
		return nil, err
	}
	view.Dropped = true
	return view, nil
}

// complete issues the result token of a session that just passed.
func (s *LivenessService) complete(session *domain.LivenessSession) error {
	challenges := make([]string, len(session.State.Order))
	for i, kind := range session.State.Order {
		challenges[i] = string(kind)
	}

	signed, err := s.tokens.Issue(session.ID, session.ClientID, challenges)
	if err != nil {
		return fmt.Errorf("session %s: issue result token: %w", session.ID, err)
	}

	now := s.now().UTC()
	session.ResultToken = signed
	session.CompletedAt = &now
	return nil
}

func (s *LivenessService) afterTransition(ctx context.Context, session *domain.LivenessSession, prev liveness.Session) {
	next := session.State

	if next.CurrentIndex > prev.CurrentIndex || (next.Complete && !prev.Complete) {
		passed := prev.Order[prev.CurrentIndex]
		s.record(ctx, session, audit.Event{EventType: audit.EventChallengePassed, Challenge: string(passed), Success: true})
		s.publish(session.ID, ws.EventChallengePassed, map[string]interface{}{
			"challenge": passed,
			"progress":  next.Progress,
		})
	}

	if next.Complete {
		s.logger.Info("liveness session completed", "session_id", session.ID, "client_id", session.ClientID, "frames", session.Frames)
		s.record(ctx, session, audit.Event{EventType: audit.EventSessionCompleted, Success: true})
		s.publish(session.ID, ws.EventSessionCompleted, map[string]interface{}{"result_token": session.ResultToken})
		s.notify(session, webhook.EventLivenessCompleted, map[string]interface{}{
			"client_id":    session.ClientID,
			"live":         true,
			"challenges":   next.Order,
			"frames":       session.Frames,
			"result_token": session.ResultToken,
		})
		s.scheduleClose(session.ID)
		return
	}

	if prev.FaceDetected && !next.FaceDetected {
		s.logger.Debug("liveness session reset", "session_id", session.ID, "lost_at", prev.CurrentIndex)
		s.record(ctx, session, audit.Event{
			EventType: audit.EventSessionReset,
			Metadata:  map[string]string{"lost_at": fmt.Sprint(prev.CurrentIndex)},
		})
		s.publish(session.ID, ws.EventSessionReset, map[string]interface{}{"lost_at": prev.CurrentIndex})
		s.notify(session, webhook.EventLivenessReset, map[string]interface{}{
			"client_id": session.ClientID,
			"lost_at":   prev.CurrentIndex,
		})
	}
}

// Reset explicitly restarts the challenges of an unfinished session.
func (s *LivenessService) Reset(ctx context.Context, id uuid.UUID) (*domain.StateView, error) {
	g := s.gate(id)
	g.mu.Lock()
	defer g.mu.Unlock()

	session, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionExpired) {
			s.dropGate(id)
		}
		return nil, err
	}
	g.expiresAt = session.ExpiresAt
	if session.State.Complete {
		return nil, domain.ErrSessionComplete
	}

	session.State = liveness.Reset(session.State)
	if err := s.store.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("session %s: update: %w", id, err)
	}

	s.record(ctx, session, audit.Event{EventType: audit.EventSessionReset, Metadata: map[string]string{"reason": "explicit"}})
	s.publish(id, ws.EventSessionReset, map[string]interface{}{"reason": "explicit"})
	return s.view(session), nil
}

// VerifyToken checks a result token issued to clientID.
func (s *LivenessService) VerifyToken(signed, clientID string) (*token.ResultClaims, error) {
	claims, err := s.tokens.Verify(signed, clientID)
	if err != nil {
		return nil, domain.ErrInvalidToken.WithError(err)
	}
	return claims, nil
}

func (s *LivenessService) scheduleClose(id uuid.UUID) {
	time.AfterFunc(s.opts.CompletionDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			s.logger.Warn("failed to close completed session", "session_id", id, "error", err)
		}
		s.dropGate(id)
		s.publish(id, ws.EventSessionClosed, nil)
	})
}

func (s *LivenessService) notify(session *domain.LivenessSession, eventType string, data interface{}) {
	if s.notifier == nil {
		return
	}
	event := webhook.EventPayload{
		Type:      eventType,
		Data:      data,
		SessionID: session.ID,
		Timestamp: s.now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
		defer cancel()
		if err := s.notifier.Send(ctx, event); err != nil {
			s.logger.Warn("webhook delivery failed, queued for retry", "session_id", event.SessionID, "event", eventType, "error", err)
		}
	}()
}

func (s *LivenessService) publish(id uuid.UUID, eventType ws.EventType, data interface{}) {
	if s.events != nil {
		s.events.Publish(id, eventType, data)
	}
}

func (s *LivenessService) record(ctx context.Context, session *domain.LivenessSession, event audit.Event) {
	event.SessionID = session.ID
	event.ClientID = session.ClientID
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.Warn("failed to write audit event", "event", event.EventType, "error", err)
	}
}

func (s *LivenessService) gate(id uuid.UUID) *gate {
	s.gatesMu.Lock()
	defer s.gatesMu.Unlock()

	g, ok := s.gates[id]
	if !ok {
		g = &gate{}
		if s.opts.FrameMinInterval > 0 {
			g.limiter = rate.NewLimiter(rate.Every(s.opts.FrameMinInterval), 1)
		}
		s.gates[id] = g
	}
	return g
}

func (s *LivenessService) dropGate(id uuid.UUID) {
	s.gatesMu.Lock()
	defer s.gatesMu.Unlock()
	delete(s.gates, id)
}

// SweepGates forgets the frame gates of sessions past their expiry and
// returns how many were removed. A gate held by a frame in flight is left
// for the next sweep.
func (s *LivenessService) SweepGates() int {
	now := s.now()

	s.gatesMu.Lock()
	defer s.gatesMu.Unlock()

	removed := 0
	for id, g := range s.gates {
		if !g.mu.TryLock() {
			continue
		}
		expired := !g.expiresAt.IsZero() && now.After(g.expiresAt)
		g.mu.Unlock()

		if expired {
			delete(s.gates, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps expired frame gates every interval until ctx is done.
// Sessions abandoned without a delete expire in the store on their own;
// this keeps their gates from piling up.
func (s *LivenessService) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepGates(); n > 0 {
				s.logger.Debug("expired frame gates removed", "count", n)
			}
		}
	}
}

func (s *LivenessService) view(session *domain.LivenessSession) *domain.StateView {
	return domain.NewStateView(session, s.machineFor(session))
}

func (s *LivenessService) machineFor(session *domain.LivenessSession) *liveness.Machine {
	return s.machine(session.Framing, session.Preview)
}

// machine builds the state machine for a session's framing. The centre
// point profile has no too-close check.
func (s *LivenessService) machine(mode liveness.FramingMode, preview liveness.Rect) *liveness.Machine {
	framing, err := liveness.NewFraming(mode, preview, s.opts.EdgeMargin)
	if err != nil {
		framing = liveness.ContainmentFraming{Preview: preview, EdgeMargin: s.opts.EdgeMargin}
	}

	var maxFaceSize float64
	if mode != liveness.FramingCenter && s.opts.TooCloseMargin > 0 {
		maxFaceSize = min(preview.Width, preview.Height) - s.opts.TooCloseMargin
	}
	return liveness.NewMachine(s.catalog, framing, maxFaceSize)
}
