package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fxamacker/cbor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/domain"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
)

// FrameProcessor applies one frame worth of detector output to a session.
type FrameProcessor interface {
	SubmitFaces(ctx context.Context, sessionID uuid.UUID, faces []liveness.FaceObservation) (*domain.StateView, error)
}

// FrameMessage is one inbound frame: JSON in a text message, CBOR in a
// binary one.
type FrameMessage struct {
	Faces []liveness.FaceObservation `json:"faces" cbor:"faces"`
}

type errorBody struct {
	Code    string `json:"code" cbor:"code"`
	Message string `json:"message" cbor:"message"`
}

type errorMessage struct {
	Error errorBody `json:"error" cbor:"error"`
}

// StreamHandler reads frames from the socket and answers each with the
// resulting state view, encoded like the frame it answers. Frames are
// handled strictly one at a time.
func StreamHandler(proc FrameProcessor, logger *slog.Logger) fiber.Handler {
	logger = logger.With("component", "ws_stream")

	return websocket.New(func(c *websocket.Conn) {
		sessionID, ok := c.Locals(LocalSessionID).(uuid.UUID)
		if !ok {
			_ = c.Close()
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for {
			mt, data, err := c.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("frame stream read failed", "session_id", sessionID, "error", err)
				}
				return
			}

			reply, done := handleFrame(ctx, proc, sessionID, mt, data)

			out, err := encodeMessage(mt, reply)
			if err != nil {
				logger.Error("encode stream reply", "session_id", sessionID, "error", err)
				return
			}
			if err := c.WriteMessage(mt, out); err != nil {
				return
			}

			if done {
				_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	})
}

// handleFrame returns the reply for one message and whether the stream is over.
func handleFrame(ctx context.Context, proc FrameProcessor, sessionID uuid.UUID, mt int, data []byte) (interface{}, bool) {
	frame, err := decodeFrame(mt, data)
	if err != nil {
		return toErrorMessage(domain.ErrValidationFailed.WithError(err)), false
	}

	view, err := proc.SubmitFaces(ctx, sessionID, frame.Faces)
	if err != nil {
		terminal := errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrSessionExpired)
		return toErrorMessage(err), terminal
	}
	return view, view.Complete
}

func decodeFrame(mt int, data []byte) (FrameMessage, error) {
	var frame FrameMessage
	switch mt {
	case websocket.TextMessage:
		if err := codec.Unmarshal(data, &frame); err != nil {
			return frame, fmt.Errorf("decode json frame: %w", err)
		}
	case websocket.BinaryMessage:
		if err := cbor.Unmarshal(data, &frame); err != nil {
			return frame, fmt.Errorf("decode cbor frame: %w", err)
		}
	default:
		return frame, fmt.Errorf("unsupported message type %d", mt)
	}
	return frame, nil
}

func encodeMessage(mt int, v interface{}) ([]byte, error) {
	if mt == websocket.BinaryMessage {
		return cbor.Marshal(v)
	}
	return codec.Marshal(v)
}

func toErrorMessage(err error) errorMessage {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		appErr = domain.ErrInternal
	}
	return errorMessage{Error: errorBody{Code: appErr.Code, Message: appErr.Message}}
}
