package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/domain"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/provider"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/ws"
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// WidgetHandler serves the routes a capturing client calls with only the
// session id.
type WidgetHandler struct {
	service LivenessService
	logger  *slog.Logger
}

func NewWidgetHandler(service LivenessService, logger *slog.Logger) *WidgetHandler {
	return &WidgetHandler{
		service: service,
		logger:  logger,
	}
}

// SubmitFrameRequest carries the detector output for one frame.
// Zero or several faces count as no face.
type SubmitFrameRequest struct {
	Faces []liveness.FaceObservation `json:"faces" validate:"max=16,dive"`
}

// SubmitFrame POST /v1/widget/liveness/:id/frames - apply client side detections
func (h *WidgetHandler) SubmitFrame(c *fiber.Ctx) error {
	id, err := parseSessionID(c)
	if err != nil {
		return err
	}

	var req SubmitFrameRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrValidationFailed.WithError(err)
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	view, err := h.service.SubmitFaces(c.Context(), id, req.Faces)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// SubmitImage POST /v1/widget/liveness/:id/images - detect faces server side
func (h *WidgetHandler) SubmitImage(c *fiber.Ctx) error {
	id, err := parseSessionID(c)
	if err != nil {
		return err
	}

	imageBytes, err := extractAndValidateImage(c)
	if err != nil {
		return fmt.Errorf("session %s: submit image: %w", id, err)
	}

	view, err := h.service.SubmitImage(c.Context(), id, imageBytes)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// Reset POST /v1/widget/liveness/:id/reset - restart the challenges
func (h *WidgetHandler) Reset(c *fiber.Ctx) error {
	id, err := parseSessionID(c)
	if err != nil {
		return err
	}

	view, err := h.service.Reset(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// PrepareStream checks the session before the frame stream is upgraded.
func (h *WidgetHandler) PrepareStream(c *fiber.Ctx) error {
	id, err := parseSessionID(c)
	if err != nil {
		return err
	}
	if _, err := h.service.View(c.Context(), id); err != nil {
		return err
	}
	c.Locals(ws.LocalSessionID, id)
	return c.Next()
}

// extractAndValidateImage extracts and validates the image from the form
func extractAndValidateImage(c *fiber.Ctx) ([]byte, error) {
	// 1. Extract file
	file, err := c.FormFile("image")
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}

	// 2. Validate size
	if file.Size == 0 || file.Size > provider.MaxImageBytes {
		return nil, domain.ErrInvalidImage.WithError(errors.New("image size out of range"))
	}

	// 3. Validate Content-Type
	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("unsupported content type %q", contentType))
	}

	// 4. Read image bytes
	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	return imageBytes, nil
}
