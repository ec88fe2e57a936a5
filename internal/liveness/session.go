package liveness

import (
	"fmt"
	"slices"
)

// FaceObservation is the detector output for exactly one face in a frame.
// Zero or several faces are reported with NoFace, never with an observation.
type FaceObservation struct {
	RollAngle               float64 `json:"roll_angle" cbor:"roll_angle"`
	YawAngle                float64 `json:"yaw_angle" cbor:"yaw_angle"`
	SmilingProbability      float64 `json:"smiling_probability" cbor:"smiling_probability" validate:"gte=0,lte=1"`
	LeftEyeOpenProbability  float64 `json:"left_eye_open_probability" cbor:"left_eye_open_probability" validate:"gte=0,lte=1"`
	RightEyeOpenProbability float64 `json:"right_eye_open_probability" cbor:"right_eye_open_probability" validate:"gte=0,lte=1"`
	BoundingBox             Rect    `json:"bounding_box" cbor:"bounding_box"`
}

// Input is what one frame contributes to a session: NoFace or FaceSeen.
type Input interface {
	isInput()
}

// NoFace means the frame held zero faces or more than one.
type NoFace struct {
	Faces int
}

// FaceSeen carries the single face found in the frame.
type FaceSeen struct {
	Observation FaceObservation
}

func (NoFace) isInput()   {}
func (FaceSeen) isInput() {}

// InputFromFaces maps a detector result to a transition input.
func InputFromFaces(faces []FaceObservation) Input {
	if len(faces) != 1 {
		return NoFace{Faces: len(faces)}
	}
	return FaceSeen{Observation: faces[0]}
}

// Phase is the coarse state of a session.
type Phase string

const (
	PhaseNoFace       Phase = "NO_FACE"
	PhaseFaceTooClose Phase = "FACE_TOO_CLOSE"
	PhaseDetecting    Phase = "DETECTING"
	PhaseComplete     Phase = "COMPLETE"
)

// Session is the state of one liveness attempt. It is a value: Process
// returns a new session instead of mutating the one it receives.
type Session struct {
	FaceDetected bool            `json:"face_detected"`
	FaceTooClose bool            `json:"face_too_close"`
	Order        []ChallengeKind `json:"order"`
	CurrentIndex int             `json:"current_index"`
	Progress     float64         `json:"progress"`
	Complete     bool            `json:"complete"`
	Window       RollWindow      `json:"window"`
}

// Reset returns the initial session for the same challenge order.
func Reset(s Session) Session {
	return Session{Order: s.Order}
}

// Equal reports whether two sessions hold the same state.
func (s Session) Equal(o Session) bool {
	return s.FaceDetected == o.FaceDetected &&
		s.FaceTooClose == o.FaceTooClose &&
		slices.Equal(s.Order, o.Order) &&
		s.CurrentIndex == o.CurrentIndex &&
		s.Progress == o.Progress &&
		s.Complete == o.Complete &&
		s.Window == o.Window
}

// Phase derives the coarse state of s.
func (s Session) Phase() Phase {
	switch {
	case s.Complete:
		return PhaseComplete
	case s.FaceTooClose:
		return PhaseFaceTooClose
	case s.FaceDetected:
		return PhaseDetecting
	default:
		return PhaseNoFace
	}
}

// CurrentChallenge returns the active challenge while detecting.
func (s Session) CurrentChallenge() (ChallengeKind, bool) {
	if s.Phase() != PhaseDetecting || s.CurrentIndex >= len(s.Order) {
		return "", false
	}
	return s.Order[s.CurrentIndex], true
}

// Prompt texts shown for each phase.
const (
	PromptPositionFace = "Position your face in the circle"
	PromptPerform      = "Keep the device still and perform the following actions:"
	PromptTooClose     = "You're too close. Hold the device further."
	PromptPassed       = "Liveness check passed"
)

// Machine applies frames to sessions. It holds configuration only; every
// session it touches is passed in and returned.
type Machine struct {
	catalog     *Catalog
	framing     FramingValidator
	maxFaceSize float64
}

// NewMachine builds a machine. A face whose width and height both reach
// maxFaceSize before detection is reported as too close; zero disables the
// check.
func NewMachine(catalog *Catalog, framing FramingValidator, maxFaceSize float64) *Machine {
	return &Machine{
		catalog:     catalog,
		framing:     framing,
		maxFaceSize: maxFaceSize,
	}
}

// Catalog returns the catalog the machine evaluates against.
func (m *Machine) Catalog() *Catalog { return m.catalog }

// NewSession validates order against the catalog and returns the initial
// session. A nil order uses the catalog order.
func (m *Machine) NewSession(order []ChallengeKind) (Session, error) {
	if order == nil {
		order = m.catalog.Order()
	}
	if err := m.catalog.ValidateOrder(order); err != nil {
		return Session{}, err
	}
	return Session{Order: slices.Clone(order)}, nil
}

// Process applies one frame to s. A completed session is returned unchanged.
func (m *Machine) Process(s Session, in Input) Session {
	if s.Complete {
		return s
	}

	var obs FaceObservation
	switch v := in.(type) {
	case NoFace:
		return Reset(s)
	case FaceSeen:
		obs = v.Observation
	default:
		panic(fmt.Sprintf("liveness: unexpected input %T", in))
	}

	if !m.framing.IsFaceWellFramed(obs) {
		return Reset(s)
	}

	if !s.FaceDetected {
		box := obs.BoundingBox
		if m.maxFaceSize > 0 && box.Width >= m.maxFaceSize && box.Height >= m.maxFaceSize {
			s.FaceTooClose = true
			return s
		}
		s.FaceTooClose = false
		s.FaceDetected = true
		s.Progress = progressStep(len(s.Order))
	}

	return m.evaluate(s, obs)
}

func (m *Machine) evaluate(s Session, obs FaceObservation) Session {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Order) {
		panic(fmt.Sprintf("liveness: challenge index %d out of range for %d challenges", s.CurrentIndex, len(s.Order)))
	}
	kind := s.Order[s.CurrentIndex]
	ch, ok := m.catalog.Lookup(kind)
	if !ok {
		panic(fmt.Sprintf("liveness: unknown challenge kind %q", kind))
	}

	if kind == Nod {
		s.Window = s.Window.Push(obs.RollAngle)
	}
	if !ch.Passed(obs, s.Window) {
		return s
	}
	return advance(s)
}

func advance(s Session) Session {
	n := len(s.Order)
	next := s.CurrentIndex + 1
	if next == n {
		s.Complete = true
		s.Progress = 100
		return s
	}
	s.CurrentIndex = next
	s.Progress = progressStep(n) * float64(next+1)
	s.Window = RollWindow{}
	return s
}

// progressStep is one unit of progress; face acquisition takes the first one.
func progressStep(n int) float64 {
	return 100 / float64(n+1)
}

// Instruction returns the instruction for the active challenge, if any.
func (m *Machine) Instruction(s Session) string {
	kind, ok := s.CurrentChallenge()
	if !ok {
		return ""
	}
	ch, _ := m.catalog.Lookup(kind)
	return ch.Instruction
}

// Prompt returns the headline text for the phase of s.
func Prompt(s Session) string {
	switch s.Phase() {
	case PhaseComplete:
		return PromptPassed
	case PhaseFaceTooClose:
		return PromptTooClose
	case PhaseDetecting:
		return PromptPerform
	default:
		return PromptPositionFace
	}
}
