package liveness

import "fmt"

// DefaultEdgeMargin is how much a face box is shrunk before containment.
const DefaultEdgeMargin = 50

// FramingValidator decides whether a detected face sits inside the target
// region. Platforms pick the strategy matching their detector.
type FramingValidator interface {
	IsFaceWellFramed(obs FaceObservation) bool
}

// FramingMode names a FramingValidator implementation.
type FramingMode string

const (
	FramingContainment FramingMode = "containment"
	FramingCenter      FramingMode = "center"
)

// ContainmentFraming accepts a face whose box, shrunk by EdgeMargin, lies
// fully inside Preview.
type ContainmentFraming struct {
	Preview    Rect
	EdgeMargin float64
}

func (f ContainmentFraming) IsFaceWellFramed(obs FaceObservation) bool {
	return Contains(f.Preview, obs.BoundingBox.Shrink(f.EdgeMargin))
}

// CenterFraming accepts a face whose centre point lies strictly inside Preview.
type CenterFraming struct {
	Preview Rect
}

func (f CenterFraming) IsFaceWellFramed(obs FaceObservation) bool {
	midX, midY := obs.BoundingBox.MidX(), obs.BoundingBox.MidY()
	return midX > f.Preview.MinX && midX < f.Preview.MaxX() &&
		midY > f.Preview.MinY && midY < f.Preview.MaxY()
}

// NewFraming builds the validator for mode.
func NewFraming(mode FramingMode, preview Rect, edgeMargin float64) (FramingValidator, error) {
	switch mode {
	case FramingContainment, "":
		return ContainmentFraming{Preview: preview, EdgeMargin: edgeMargin}, nil
	case FramingCenter:
		return CenterFraming{Preview: preview}, nil
	default:
		return nil, fmt.Errorf("unknown framing mode %q", mode)
	}
}

var (
	_ FramingValidator = ContainmentFraming{}
	_ FramingValidator = CenterFraming{}
)
