package liveness

import (
	"errors"
	"fmt"
)

// ChallengeKind identifies one physical action the subject must perform.
type ChallengeKind string

const (
	Blink         ChallengeKind = "BLINK"
	TurnHeadLeft  ChallengeKind = "TURN_HEAD_LEFT"
	TurnHeadRight ChallengeKind = "TURN_HEAD_RIGHT"
	Nod           ChallengeKind = "NOD"
	Smile         ChallengeKind = "SMILE"
)

// Kinds lists every known challenge kind in default order.
var Kinds = []ChallengeKind{Blink, TurnHeadLeft, TurnHeadRight, Nod, Smile}

// Valid reports whether k belongs to the closed set of challenge kinds.
func (k ChallengeKind) Valid() bool {
	switch k {
	case Blink, TurnHeadLeft, TurnHeadRight, Nod, Smile:
		return true
	}
	return false
}

// Challenge is one catalog entry. The meaning of Threshold depends on Kind:
// BLINK is the highest eye-open probability counted as closed, TURN_HEAD_LEFT
// the highest yaw, TURN_HEAD_RIGHT the lowest yaw, NOD the minimum roll
// deviation and SMILE the minimum smiling probability.
type Challenge struct {
	Kind        ChallengeKind `json:"kind"`
	Instruction string        `json:"instruction"`
	Threshold   float64       `json:"threshold"`
}

var (
	ErrEmptyCatalog       = errors.New("catalog has no challenges")
	ErrUnknownChallenge   = errors.New("unknown challenge kind")
	ErrDuplicateChallenge = errors.New("duplicate challenge kind")
	ErrEmptyOrder         = errors.New("challenge order is empty")
)

// Catalog is an ordered, immutable set of challenge definitions.
type Catalog struct {
	entries []Challenge
	byKind  map[ChallengeKind]Challenge
}

// NewCatalog validates entries and returns a catalog keeping their order.
func NewCatalog(entries []Challenge) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		entries: make([]Challenge, 0, len(entries)),
		byKind:  make(map[ChallengeKind]Challenge, len(entries)),
	}
	for _, e := range entries {
		if !e.Kind.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChallenge, e.Kind)
		}
		if _, ok := c.byKind[e.Kind]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateChallenge, e.Kind)
		}
		c.entries = append(c.entries, e)
		c.byKind[e.Kind] = e
	}
	return c, nil
}

// DefaultCatalog returns the five challenges with the default thresholds.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultChallenges())
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultChallenges returns a fresh copy of the default definitions.
// Yaw follows the convention that a negative angle is a turn to the left.
func DefaultChallenges() []Challenge {
	return []Challenge{
		{Kind: Blink, Instruction: "Blink both eyes", Threshold: 0.3},
		{Kind: TurnHeadLeft, Instruction: "Turn head left", Threshold: -15},
		{Kind: TurnHeadRight, Instruction: "Turn head right", Threshold: 15},
		{Kind: Nod, Instruction: "Nod", Threshold: 1.5},
		{Kind: Smile, Instruction: "Smile", Threshold: 0.7},
	}
}

// Len returns the number of challenges.
func (c *Catalog) Len() int { return len(c.entries) }

// Order returns the catalog kinds in catalog order.
func (c *Catalog) Order() []ChallengeKind {
	out := make([]ChallengeKind, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Kind
	}
	return out
}

// Challenges returns a copy of the entries.
func (c *Catalog) Challenges() []Challenge {
	out := make([]Challenge, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup returns the definition for kind.
func (c *Catalog) Lookup(kind ChallengeKind) (Challenge, bool) {
	ch, ok := c.byKind[kind]
	return ch, ok
}

// ValidateOrder checks that order is non-empty, has no repeats and only uses
// kinds present in the catalog.
func (c *Catalog) ValidateOrder(order []ChallengeKind) error {
	if len(order) == 0 {
		return ErrEmptyOrder
	}
	seen := make(map[ChallengeKind]bool, len(order))
	for _, k := range order {
		if _, ok := c.byKind[k]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownChallenge, k)
		}
		if seen[k] {
			return fmt.Errorf("%w: %s", ErrDuplicateChallenge, k)
		}
		seen[k] = true
	}
	return nil
}

// Passed evaluates the predicate of challenge ch. The NOD predicate reads the
// roll window, which the caller must already have fed with this frame.
func (ch Challenge) Passed(obs FaceObservation, window RollWindow) bool {
	switch ch.Kind {
	case Blink:
		return obs.LeftEyeOpenProbability <= ch.Threshold &&
			obs.RightEyeOpenProbability <= ch.Threshold
	case TurnHeadLeft:
		return obs.YawAngle <= ch.Threshold
	case TurnHeadRight:
		return obs.YawAngle >= ch.Threshold
	case Nod:
		return window.Nodded(ch.Threshold)
	case Smile:
		return obs.SmilingProbability >= ch.Threshold
	default:
		panic(fmt.Sprintf("liveness: unknown challenge kind %q", ch.Kind))
	}
}
