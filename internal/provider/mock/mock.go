package mock

import (
	"context"
	"sync"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
	"github.com/saturnino-fabrica-de-software/liveguard/internal/provider"
)

// Detector implementa provider.FaceDetector para testes e desenvolvimento.
// Sem script, retorna uma face neutra centralizada na imagem.
type Detector struct {
	mu     sync.Mutex
	script [][]liveness.FaceObservation
	next   int
}

// New cria uma nova instância do detector mock
func New() *Detector {
	return &Detector{}
}

// NewScripted replays frames in order, one per call, then repeats the last one.
func NewScripted(frames ...[]liveness.FaceObservation) *Detector {
	return &Detector{script: frames}
}

func (d *Detector) Name() string { return "mock" }

// DetectFaces simula detecção de faces
func (d *Detector) DetectFaces(_ context.Context, image []byte) ([]liveness.FaceObservation, error) {
	frame, err := provider.PrepareFrame(image)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.script) == 0 {
		return []liveness.FaceObservation{centred(frame)}, nil
	}

	faces := d.script[min(d.next, len(d.script)-1)]
	if d.next < len(d.script) {
		d.next++
	}
	out := make([]liveness.FaceObservation, len(faces))
	copy(out, faces)
	return out, nil
}

// centred returns a neutral face covering the middle half of the frame
func centred(frame *provider.Frame) liveness.FaceObservation {
	w, h := float64(frame.Width), float64(frame.Height)
	return liveness.FaceObservation{
		LeftEyeOpenProbability:  0.95,
		RightEyeOpenProbability: 0.95,
		SmilingProbability:      0.05,
		BoundingBox: liveness.Rect{
			MinX:   w / 4,
			MinY:   h / 4,
			Width:  w / 2,
			Height: h / 2,
		},
	}
}

var _ provider.FaceDetector = (*Detector)(nil)
