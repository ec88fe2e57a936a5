package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/domain"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
)

type fakeProcessor struct {
	mu     sync.Mutex
	known  uuid.UUID
	frames int
}

func (p *fakeProcessor) SubmitFaces(_ context.Context, sessionID uuid.UUID, faces []liveness.FaceObservation) (*domain.StateView, error) {
	if sessionID != p.known {
		return nil, domain.ErrSessionNotFound
	}

	p.mu.Lock()
	p.frames++
	n := p.frames
	p.mu.Unlock()

	view := &domain.StateView{SessionID: sessionID, Progress: float64(n * 10)}
	if len(faces) == 1 && faces[0].SmilingProbability > 0.9 {
		view.Complete = true
		view.Progress = 100
	}
	return view, nil
}

func startStreamServer(t *testing.T, proc FrameProcessor) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use("/stream/:id", UpgradeMiddleware(), func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Params("id"))
		if err != nil {
			return fiber.ErrBadRequest
		}
		c.Locals(LocalSessionID, id)
		return c.Next()
	})
	app.Get("/stream/:id", StreamHandler(proc, slog.New(slog.NewTextHandler(io.Discard, nil))))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	return "ws://" + ln.Addr().String() + "/stream/"
}

func dial(t *testing.T, url string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStream_JSONFrames(t *testing.T) {
	id := uuid.New()
	conn := dial(t, startStreamServer(t, &fakeProcessor{known: id})+id.String())

	for i := 1; i <= 2; i++ {
		require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(`{"faces":[{"yaw_angle":3}]}`)))

		mt, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, gws.TextMessage, mt)

		var view domain.StateView
		require.NoError(t, json.Unmarshal(data, &view))
		assert.Equal(t, id, view.SessionID)
		assert.Equal(t, float64(i*10), view.Progress)
	}
}

func TestStream_CBORFrames(t *testing.T) {
	id := uuid.New()
	conn := dial(t, startStreamServer(t, &fakeProcessor{known: id})+id.String())

	msg, err := cbor.Marshal(FrameMessage{Faces: []liveness.FaceObservation{{SmilingProbability: 0.2}}})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gws.BinaryMessage, msg))

	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, gws.BinaryMessage, mt)

	var view domain.StateView
	require.NoError(t, cbor.Unmarshal(data, &view))
	assert.Equal(t, id, view.SessionID)
	assert.Equal(t, 10.0, view.Progress)
}

func TestStream_MalformedFrameKeepsStreamOpen(t *testing.T) {
	id := uuid.New()
	conn := dial(t, startStreamServer(t, &fakeProcessor{known: id})+id.String())

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(`{"faces":`)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var reply errorMessage
	require.NoError(t, json.Unmarshal(data, &reply))
	assert.Equal(t, "VALIDATION_FAILED", reply.Error.Code)

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(`{"faces":[]}`)))
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"progress":10`)
}

func TestStream_ClosesAfterCompletion(t *testing.T) {
	id := uuid.New()
	conn := dial(t, startStreamServer(t, &fakeProcessor{known: id})+id.String())

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(`{"faces":[{"smiling_probability":0.95}]}`)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"complete":true`)

	_, _, err = conn.ReadMessage()
	assert.True(t, gws.IsCloseError(err, gws.CloseNormalClosure), "got %v", err)
}

func TestStream_UnknownSessionClosesStream(t *testing.T) {
	conn := dial(t, startStreamServer(t, &fakeProcessor{known: uuid.New()})+uuid.New().String())

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte(`{"faces":[]}`)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "SESSION_NOT_FOUND")

	_, _, err = conn.ReadMessage()
	assert.True(t, gws.IsCloseError(err, gws.CloseNormalClosure), "got %v", err)
}

func TestDecodeFrame_UnsupportedType(t *testing.T) {
	_, err := decodeFrame(gws.PingMessage, nil)
	assert.Error(t, err)
}
