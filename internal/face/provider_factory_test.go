package face

import (
	"context"
	"testing"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/config"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/provider/rekognition"
)

func TestNewDetector_Mock(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		detectorType string
	}{
		{name: "explicit mock detector", detectorType: "mock"},
		{name: "empty type defaults to mock", detectorType: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{DetectorType: tt.detectorType}

			detector, err := NewDetector(ctx, cfg)
			if err != nil {
				t.Fatalf("NewDetector() error = %v", err)
			}

			if _, ok := detector.(*mock.Detector); !ok {
				t.Errorf("NewDetector() returned type %T, want *mock.Detector", detector)
			}
		})
	}
}

func TestNewDetector_None(t *testing.T) {
	detector, err := NewDetector(context.Background(), &config.Config{DetectorType: "none"})
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}
	if detector != nil {
		t.Errorf("NewDetector() = %T, want nil", detector)
	}
}

func TestNewDetector_Rekognition(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Rekognition test in short mode (loads AWS configuration)")
	}

	cfg := &config.Config{
		DetectorType: "rekognition",
		AWSRegion:    "us-east-1",
	}

	detector, err := NewDetector(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewDetector() error = %v", err)
	}

	if _, ok := detector.(*rekognition.Detector); !ok {
		t.Errorf("NewDetector() returned type %T, want *rekognition.Detector", detector)
	}
	if detector.Name() != "rekognition" {
		t.Errorf("Name() = %s, want rekognition", detector.Name())
	}
}

func TestNewDetector_UnknownType(t *testing.T) {
	cfg := &config.Config{DetectorType: "deepface"}

	detector, err := NewDetector(context.Background(), cfg)
	if err == nil {
		t.Fatal("NewDetector() expected error for unknown type, got nil")
	}
	if detector != nil {
		t.Errorf("NewDetector() returned %T, want nil", detector)
	}
}
