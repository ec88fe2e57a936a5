package provider

import (
	"context"
	"errors"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
)

// FaceDetector define a interface para provedores de detecção facial
type FaceDetector interface {
	// DetectFaces returns one observation per face found in the image, with
	// bounding boxes in image pixel coordinates. No face is an empty slice,
	// not an error.
	DetectFaces(ctx context.Context, image []byte) ([]liveness.FaceObservation, error)

	// Name identifies the provider in logs and audit events.
	Name() string
}

var (
	// ErrInvalidImage indicates the upload is empty, too large or not a supported image
	ErrInvalidImage = errors.New("invalid image")

	// ErrUnavailable indicates the provider could not be reached or rejected the credentials
	ErrUnavailable = errors.New("face detection provider unavailable")

	// ErrThrottled indicates the provider is rate limiting requests
	ErrThrottled = errors.New("face detection provider throttled")
)
