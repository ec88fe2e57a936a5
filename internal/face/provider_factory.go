package face

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/config"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/provider"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/provider/rekognition"
)

// DetectorType defines supported server side face detectors
type DetectorType string

const (
	// DetectorTypeMock is the deterministic detector (local, for dev/test)
	DetectorTypeMock DetectorType = "mock"
	// DetectorTypeRekognition is the AWS Rekognition detector (cloud, for prod)
	DetectorTypeRekognition DetectorType = "rekognition"
	// DetectorTypeNone disables image submission
	DetectorTypeNone DetectorType = "none"
)

// NewDetector creates the FaceDetector selected by configuration. It returns
// a nil detector for DetectorTypeNone; sessions then only accept observations
// computed on the client.
//
// Environment variables:
//   - DETECTOR: "mock", "rekognition" or "none" (default: "mock")
//   - AWS_REGION: AWS region for Rekognition (default: "us-east-1")
//   - DETECTOR_INVERT_YAW: flip the yaw sign reported by Rekognition
//   - AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY: via the AWS SDK credential chain
func NewDetector(ctx context.Context, cfg *config.Config) (provider.FaceDetector, error) {
	switch DetectorType(cfg.DetectorType) {
	case DetectorTypeRekognition:
		return createRekognitionDetector(ctx, cfg)

	case DetectorTypeMock, "":
		return mock.New(), nil

	case DetectorTypeNone:
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown detector type: %s (supported: %s, %s, %s)",
			cfg.DetectorType, DetectorTypeMock, DetectorTypeRekognition, DetectorTypeNone)
	}
}

// createRekognitionDetector creates an AWS Rekognition detector instance
func createRekognitionDetector(ctx context.Context, cfg *config.Config) (provider.FaceDetector, error) {
	rekogConfig := rekognition.DefaultConfig()
	if cfg.AWSRegion != "" {
		rekogConfig.Region = cfg.AWSRegion
	}
	rekogConfig.InvertYaw = cfg.InvertYaw

	d, err := rekognition.NewDetector(ctx, rekogConfig)
	if err != nil {
		return nil, fmt.Errorf("create rekognition detector in %s: %w", rekogConfig.Region, err)
	}

	return d, nil
}
