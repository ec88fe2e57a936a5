package rekognition

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/provider"
)

// Detector implements provider.FaceDetector using AWS Rekognition DetectFaces
type Detector struct {
	api    DetectFacesAPI
	config Config
}

// Ensure Detector implements provider.FaceDetector interface at compile time
var _ provider.FaceDetector = (*Detector)(nil)

// NewDetector creates a detector backed by a real Rekognition client
func NewDetector(ctx context.Context, cfg Config) (*Detector, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return NewDetectorWithAPI(client, cfg), nil
}

// NewDetectorWithAPI creates a detector over any DetectFacesAPI implementation
func NewDetectorWithAPI(api DetectFacesAPI, cfg Config) *Detector {
	return &Detector{api: api, config: cfg}
}

func (d *Detector) Name() string { return "rekognition" }

// DetectFaces detects faces in an image using AWS Rekognition DetectFaces API
// Returns an empty slice if no faces are detected (not an error)
func (d *Detector) DetectFaces(ctx context.Context, image []byte) ([]liveness.FaceObservation, error) {
	frame, err := provider.PrepareFrame(image)
	if err != nil {
		return nil, err
	}

	input := &rekognition.DetectFacesInput{
		Image: &types.Image{
			Bytes: frame.Data,
		},
		Attributes: []types.Attribute{types.AttributeAll},
	}

	output, err := d.api.DetectFaces(ctx, input)
	if err != nil {
		return nil, mapError(err)
	}

	faces := make([]liveness.FaceObservation, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		if detail.Confidence != nil && float64(*detail.Confidence) < d.config.MinConfidence {
			continue
		}
		faces = append(faces, d.toObservation(detail, frame))
	}

	return faces, nil
}

func (d *Detector) toObservation(detail types.FaceDetail, frame *provider.Frame) liveness.FaceObservation {
	var obs liveness.FaceObservation

	if bb := detail.BoundingBox; bb != nil {
		w, h := float64(frame.Width), float64(frame.Height)
		obs.BoundingBox = liveness.Rect{
			MinX:   float64(deref(bb.Left)) * w,
			MinY:   float64(deref(bb.Top)) * h,
			Width:  float64(deref(bb.Width)) * w,
			Height: float64(deref(bb.Height)) * h,
		}
	}

	if p := detail.Pose; p != nil {
		obs.RollAngle = float64(deref(p.Roll))
		obs.YawAngle = float64(deref(p.Yaw))
		if d.config.InvertYaw {
			obs.YawAngle = -obs.YawAngle
		}
	}

	// Rekognition reports both eyes together.
	eyes := 1.0
	if detail.EyesOpen != nil {
		eyes = probability(detail.EyesOpen.Value, detail.EyesOpen.Confidence)
	}
	obs.LeftEyeOpenProbability = eyes
	obs.RightEyeOpenProbability = eyes

	if detail.Smile != nil {
		obs.SmilingProbability = probability(detail.Smile.Value, detail.Smile.Confidence)
	}

	return obs
}

// probability turns a boolean verdict with a 0-100 confidence into the
// probability that the attribute is present.
func probability(value bool, confidence *float32) float64 {
	c := float64(deref(confidence)) / 100
	if c > 1 {
		c = 1
	}
	if value {
		return c
	}
	return 1 - c
}

func deref(v *float32) float32 {
	if v == nil {
		return 0
	}
	return *v
}
