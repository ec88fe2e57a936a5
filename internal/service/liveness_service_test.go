package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/domain"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/provider"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/repository"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/token"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/webhook"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/ws"
)

type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) DetectFaces(ctx context.Context, image []byte) ([]liveness.FaceObservation, error) {
	args := m.Called(ctx, image)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]liveness.FaceObservation), args.Error(1)
}

func (m *MockDetector) Name() string { return "mock-detector" }

type recordedEvent struct {
	sessionID uuid.UUID
	eventType ws.EventType
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) Publish(sessionID uuid.UUID, eventType ws.EventType, _ interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{sessionID, eventType})
}

func (r *eventRecorder) types() []ws.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ws.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.eventType
	}
	return out
}

type notifierStub struct {
	sent chan webhook.EventPayload
}

func (n *notifierStub) Send(_ context.Context, event webhook.EventPayload) error {
	n.sent <- event
	return nil
}

const testClient = "acme"

var testPreview = liveness.Rect{MinX: 25, MinY: 50, Width: 325, Height: 325}

type fixture struct {
	svc    *LivenessService
	store  *repository.MemorySessionStore
	events *eventRecorder
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()

	opts := Options{
		Preview:         testPreview,
		Framing:         liveness.FramingContainment,
		EdgeMargin:      50,
		TooCloseMargin:  90,
		SessionTTL:      time.Minute,
		CompletionDelay: 10 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&opts)
	}

	store := repository.NewMemorySessionStore()
	events := &eventRecorder{}
	tokens := token.NewResultService("test-secret", "liveguard", time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewLivenessService(store, liveness.DefaultCatalog(), tokens, opts, logger).WithEvents(events)
	return &fixture{svc: svc, store: store, events: events}
}

func (f *fixture) create(t *testing.T, order ...liveness.ChallengeKind) *domain.LivenessSession {
	t.Helper()
	session, err := f.svc.CreateSession(context.Background(), CreateSessionInput{ClientID: testClient, Order: order})
	require.NoError(t, err)
	return session
}

func neutralFace() liveness.FaceObservation {
	return liveness.FaceObservation{
		LeftEyeOpenProbability:  0.9,
		RightEyeOpenProbability: 0.9,
		SmilingProbability:      0.1,
		BoundingBox:             liveness.Rect{MinX: 100, MinY: 120, Width: 150, Height: 150},
	}
}

func blinkingFace() liveness.FaceObservation {
	o := neutralFace()
	o.LeftEyeOpenProbability, o.RightEyeOpenProbability = 0.1, 0.1
	return o
}

func smilingFace() liveness.FaceObservation {
	o := neutralFace()
	o.SmilingProbability = 0.9
	return o
}

func TestLivenessService_CreateSession(t *testing.T) {
	tests := []struct {
		name    string
		input   CreateSessionInput
		wantErr error
		check   func(t *testing.T, s *domain.LivenessSession)
	}{
		{
			name:  "defaults",
			input: CreateSessionInput{ClientID: testClient},
			check: func(t *testing.T, s *domain.LivenessSession) {
				assert.Equal(t, liveness.Kinds, s.State.Order)
				assert.Equal(t, testPreview, s.Preview)
				assert.Equal(t, liveness.FramingContainment, s.Framing)
				assert.Equal(t, liveness.PhaseNoFace, s.State.Phase())
				assert.WithinDuration(t, time.Now().Add(time.Minute), s.ExpiresAt, 5*time.Second)
			},
		},
		{
			name:  "explicit order and centre framing",
			input: CreateSessionInput{ClientID: testClient, Order: []liveness.ChallengeKind{liveness.Smile, liveness.Nod}, Framing: liveness.FramingCenter},
			check: func(t *testing.T, s *domain.LivenessSession) {
				assert.Equal(t, []liveness.ChallengeKind{liveness.Smile, liveness.Nod}, s.State.Order)
				assert.Equal(t, liveness.FramingCenter, s.Framing)
			},
		},
		{
			name:    "missing client",
			input:   CreateSessionInput{},
			wantErr: domain.ErrValidationFailed,
		},
		{
			name:    "unknown framing",
			input:   CreateSessionInput{ClientID: testClient, Framing: "oval"},
			wantErr: domain.ErrValidationFailed,
		},
		{
			name:    "empty preview",
			input:   CreateSessionInput{ClientID: testClient, Preview: &liveness.Rect{}},
			wantErr: domain.ErrValidationFailed,
		},
		{
			name:    "repeated challenge",
			input:   CreateSessionInput{ClientID: testClient, Order: []liveness.ChallengeKind{liveness.Blink, liveness.Blink}},
			wantErr: domain.ErrInvalidChallengeOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			session, err := f.svc.CreateSession(context.Background(), tt.input)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			stored, err := f.store.GetByID(context.Background(), session.ID)
			require.NoError(t, err)
			assert.Equal(t, testClient, stored.ClientID)
			tt.check(t, stored)
		})
	}
}

func TestLivenessService_CreateSessionShuffles(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Shuffle = true })
	f.svc.shuffle = func(order []liveness.ChallengeKind) { slices.Reverse(order) }

	session := f.create(t)
	assert.Equal(t, []liveness.ChallengeKind{liveness.Smile, liveness.Nod, liveness.TurnHeadRight, liveness.TurnHeadLeft, liveness.Blink}, session.State.Order)

	off := false
	session, err := f.svc.CreateSession(context.Background(), CreateSessionInput{ClientID: testClient, Shuffle: &off})
	require.NoError(t, err)
	assert.Equal(t, liveness.Kinds, session.State.Order)
}

func TestLivenessService_CompletesAndCloses(t *testing.T) {
	f := newFixture(t)
	notifier := &notifierStub{sent: make(chan webhook.EventPayload, 4)}
	f.svc.WithNotifier(notifier)
	session := f.create(t, liveness.Blink, liveness.Smile)
	ctx := context.Background()

	view, err := f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{neutralFace()})
	require.NoError(t, err)
	assert.Equal(t, liveness.PhaseDetecting, view.Phase)
	assert.Equal(t, liveness.Blink, view.CurrentChallenge)
	assert.Equal(t, "Blink both eyes", view.Instruction)
	assert.InDelta(t, 100.0/3, view.Progress, 1e-9)

	view, err = f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{blinkingFace()})
	require.NoError(t, err)
	assert.Equal(t, 1, view.ChallengeIndex)
	assert.InDelta(t, 200.0/3, view.Progress, 1e-9)

	view, err = f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{smilingFace()})
	require.NoError(t, err)
	assert.True(t, view.Complete)
	assert.Equal(t, 100.0, view.Progress)
	assert.Equal(t, liveness.PromptPassed, view.Prompt)
	require.NotEmpty(t, view.ResultToken)

	claims, err := f.svc.VerifyToken(view.ResultToken, testClient)
	require.NoError(t, err)
	assert.Equal(t, session.ID, claims.SessionID)
	assert.True(t, claims.Live)
	assert.Equal(t, []string{"BLINK", "SMILE"}, claims.Challenges)

	select {
	case event := <-notifier.sent:
		assert.Equal(t, webhook.EventLivenessCompleted, event.Type)
		assert.Equal(t, session.ID, event.SessionID)
	case <-time.After(time.Second):
		t.Fatal("completion webhook not sent")
	}

	require.Eventually(t, func() bool {
		_, err := f.store.GetByID(ctx, session.ID)
		return errors.Is(err, domain.ErrSessionNotFound)
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return slices.Contains(f.events.types(), ws.EventSessionClosed)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []ws.EventType{
		ws.EventChallengePassed,
		ws.EventChallengePassed,
		ws.EventSessionCompleted,
		ws.EventSessionClosed,
	}, f.events.types())
}

func TestLivenessService_CompleteIsAbsorbing(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.CompletionDelay = time.Hour })
	session := f.create(t, liveness.Smile)
	ctx := context.Background()

	_, err := f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{neutralFace()})
	require.NoError(t, err)
	done, err := f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{smilingFace()})
	require.NoError(t, err)
	require.True(t, done.Complete)

	view, err := f.svc.SubmitFaces(ctx, session.ID, nil)
	require.NoError(t, err)
	assert.True(t, view.Complete)
	assert.Equal(t, done.ResultToken, view.ResultToken)

	_, err = f.svc.Reset(ctx, session.ID)
	assert.ErrorIs(t, err, domain.ErrSessionComplete)
}

func TestLivenessService_FaceLossResets(t *testing.T) {
	f := newFixture(t)
	notifier := &notifierStub{sent: make(chan webhook.EventPayload, 4)}
	f.svc.WithNotifier(notifier)
	session := f.create(t, liveness.Blink, liveness.Smile)
	ctx := context.Background()

	_, err := f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{neutralFace()})
	require.NoError(t, err)
	_, err = f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{blinkingFace()})
	require.NoError(t, err)

	view, err := f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{neutralFace(), neutralFace()})
	require.NoError(t, err)

	assert.Equal(t, liveness.PhaseNoFace, view.Phase)
	assert.Zero(t, view.ChallengeIndex)
	assert.Zero(t, view.Progress)
	assert.Contains(t, f.events.types(), ws.EventSessionReset)

	select {
	case event := <-notifier.sent:
		assert.Equal(t, webhook.EventLivenessReset, event.Type)
	case <-time.After(time.Second):
		t.Fatal("reset webhook not sent")
	}

	stored, err := f.store.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Frames)
}

func TestLivenessService_TooClose(t *testing.T) {
	f := newFixture(t)
	session := f.create(t)

	near := neutralFace()
	near.BoundingBox = liveness.Rect{MinX: 40, MinY: 60, Width: 300, Height: 300}

	view, err := f.svc.SubmitFaces(context.Background(), session.ID, []liveness.FaceObservation{near})
	require.NoError(t, err)
	assert.Equal(t, liveness.PhaseFaceTooClose, view.Phase)
	assert.Equal(t, liveness.PromptTooClose, view.Prompt)
}

func TestLivenessService_CenterFramingHasNoTooCloseCheck(t *testing.T) {
	f := newFixture(t)
	session, err := f.svc.CreateSession(context.Background(), CreateSessionInput{ClientID: testClient, Framing: liveness.FramingCenter})
	require.NoError(t, err)

	near := neutralFace()
	near.BoundingBox = liveness.Rect{MinX: 40, MinY: 60, Width: 300, Height: 300}

	view, err := f.svc.SubmitFaces(context.Background(), session.ID, []liveness.FaceObservation{near})
	require.NoError(t, err)
	assert.Equal(t, liveness.PhaseDetecting, view.Phase)
}

func TestLivenessService_SubmitFacesErrors(t *testing.T) {
	f := newFixture(t)
	session := f.create(t)

	bad := neutralFace()
	bad.SmilingProbability = 1.5
	_, err := f.svc.SubmitFaces(context.Background(), session.ID, []liveness.FaceObservation{bad})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	inverted := neutralFace()
	inverted.BoundingBox.Width = -1000
	_, err = f.svc.SubmitFaces(context.Background(), session.ID, []liveness.FaceObservation{inverted})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	flat := neutralFace()
	flat.BoundingBox.Height = -1
	_, err = f.svc.SubmitFaces(context.Background(), session.ID, []liveness.FaceObservation{flat})
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	stored, err := f.store.GetByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Frames)

	_, err = f.svc.SubmitFaces(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestLivenessService_DropsFramesWhileBusy(t *testing.T) {
	f := newFixture(t)
	detector := new(MockDetector)
	f.svc.WithDetector(detector)
	session := f.create(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	detector.On("DetectFaces", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return([]liveness.FaceObservation{neutralFace()}, nil).
		Once()

	type result struct {
		view *domain.StateView
		err  error
	}
	slow := make(chan result, 1)
	go func() {
		view, err := f.svc.SubmitImage(context.Background(), session.ID, []byte("frame"))
		slow <- result{view, err}
	}()
	<-entered

	view, err := f.svc.SubmitFaces(context.Background(), session.ID, []liveness.FaceObservation{blinkingFace()})
	require.NoError(t, err)
	assert.True(t, view.Dropped)
	assert.Equal(t, liveness.PhaseNoFace, view.Phase)

	close(release)
	r := <-slow
	require.NoError(t, r.err)
	assert.False(t, r.view.Dropped)
	assert.Equal(t, liveness.PhaseDetecting, r.view.Phase)

	stored, err := f.store.GetByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Frames)
	detector.AssertExpectations(t)
}

func TestLivenessService_ThrottlesFrames(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.FrameMinInterval = time.Hour })
	session := f.create(t)
	ctx := context.Background()

	first, err := f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{neutralFace()})
	require.NoError(t, err)
	assert.False(t, first.Dropped)

	second, err := f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{blinkingFace()})
	require.NoError(t, err)
	assert.True(t, second.Dropped)
	assert.Equal(t, 0, second.ChallengeIndex)
}

func TestLivenessService_SubmitImage(t *testing.T) {
	tests := []struct {
		name      string
		detectErr error
		wantErr   error
	}{
		{"invalid image", provider.ErrInvalidImage, domain.ErrInvalidImage},
		{"throttled", provider.ErrThrottled, domain.ErrProviderRateLimited},
		{"unavailable", provider.ErrUnavailable, domain.ErrDetectorUnavailable},
		{"other failure", errors.New("boom"), domain.ErrDetectionFailed},
		{"success", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			detector := new(MockDetector)
			f.svc.WithDetector(detector)
			session := f.create(t)

			if tt.detectErr != nil {
				detector.On("DetectFaces", mock.Anything, []byte("img")).Return(nil, tt.detectErr)
			} else {
				detector.On("DetectFaces", mock.Anything, []byte("img")).Return([]liveness.FaceObservation{neutralFace()}, nil)
			}

			view, err := f.svc.SubmitImage(context.Background(), session.ID, []byte("img"))

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, view.FaceDetected)
			detector.AssertExpectations(t)
		})
	}
}

func TestLivenessService_SubmitImageWithoutDetector(t *testing.T) {
	f := newFixture(t)
	session := f.create(t)

	_, err := f.svc.SubmitImage(context.Background(), session.ID, []byte("img"))
	assert.ErrorIs(t, err, domain.ErrDetectorUnavailable)
}

func TestLivenessService_Reset(t *testing.T) {
	f := newFixture(t)
	session := f.create(t, liveness.Blink, liveness.Smile)
	ctx := context.Background()

	_, err := f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{neutralFace()})
	require.NoError(t, err)

	view, err := f.svc.Reset(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, liveness.PhaseNoFace, view.Phase)
	assert.Equal(t, []liveness.ChallengeKind{liveness.Blink, liveness.Smile}, view.Challenges)
	assert.Contains(t, f.events.types(), ws.EventSessionReset)

	_, err = f.svc.Reset(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestLivenessService_OwnershipAndDelete(t *testing.T) {
	f := newFixture(t)
	session := f.create(t)
	ctx := context.Background()

	_, err := f.svc.GetSession(ctx, session.ID, "someone-else")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	err = f.svc.DeleteSession(ctx, session.ID, "someone-else")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, f.svc.DeleteSession(ctx, session.ID, testClient))

	_, err = f.svc.GetSession(ctx, session.ID, testClient)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Contains(t, f.events.types(), ws.EventSessionClosed)
}

func TestLivenessService_VerifyTokenRejectsGarbage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyToken("not-a-token", testClient)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func (f *fixture) gateCount() int {
	f.svc.gatesMu.Lock()
	defer f.svc.gatesMu.Unlock()
	return len(f.svc.gates)
}

func TestLivenessService_SweepGatesForgetsAbandonedSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		session := f.create(t)
		_, err := f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{neutralFace()})
		require.NoError(t, err)
	}
	live := f.create(t)
	require.Equal(t, 20, f.gateCount())

	assert.Equal(t, 0, f.svc.SweepGates())
	assert.Equal(t, 20, f.gateCount())

	// Every session created so far is past its TTL from here on.
	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 20, f.svc.SweepGates())
	assert.Equal(t, 0, f.gateCount())

	_, err := f.svc.SubmitFaces(ctx, live.ID, []liveness.FaceObservation{neutralFace()})
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateCount(), "a fresh frame builds a new gate")
}

func TestLivenessService_SweepGatesSkipsBusyGate(t *testing.T) {
	f := newFixture(t)
	session := f.create(t)
	_, err := f.svc.SubmitFaces(context.Background(), session.ID, []liveness.FaceObservation{neutralFace()})
	require.NoError(t, err)

	g := f.svc.gate(session.ID)
	g.mu.Lock()
	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 0, f.svc.SweepGates())
	g.mu.Unlock()

	assert.Equal(t, 1, f.svc.SweepGates())
}

func TestLivenessService_RunJanitor(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.SessionTTL = 100 * time.Millisecond })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		session := f.create(t)
		_, err := f.svc.SubmitFaces(ctx, session.ID, []liveness.FaceObservation{neutralFace()})
		require.NoError(t, err)
	}
	require.Equal(t, 5, f.gateCount())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		f.svc.RunJanitor(runCtx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return f.gateCount() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestLivenessService_ResetOfMissingSessionDropsGate(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Reset(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Equal(t, 0, f.gateCount())
}
