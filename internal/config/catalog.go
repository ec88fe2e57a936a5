package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/mcuadros/go-defaults"

	"github.com/saturnino-fabrica-de-software/liveguard/internal/liveness"
)

// ChallengeProfile is the TOML file that tunes the challenge catalog.
//
//	order = ["BLINK", "NOD", "SMILE"]
//
//	[blink]
//	threshold = 0.4
//
//	[nod]
//	threshold = 1.0
//	instruction = "Nod your head"
//
// Sections left out keep their default threshold and instruction.
type ChallengeProfile struct {
	Order         []string          `toml:"order"`
	Blink         blinkEntry        `toml:"blink"`
	TurnHeadLeft  turnHeadLeftEntry `toml:"turn_head_left"`
	TurnHeadRight turnRightEntry    `toml:"turn_head_right"`
	Nod           nodEntry          `toml:"nod"`
	Smile         smileEntry        `toml:"smile"`
}

type blinkEntry struct {
	Instruction string  `toml:"instruction" default:"Blink both eyes"`
	Threshold   float64 `toml:"threshold" default:"0.3"`
}

type turnHeadLeftEntry struct {
	Instruction string  `toml:"instruction" default:"Turn head left"`
	Threshold   float64 `toml:"threshold" default:"-15"`
}

type turnRightEntry struct {
	Instruction string  `toml:"instruction" default:"Turn head right"`
	Threshold   float64 `toml:"threshold" default:"15"`
}

type nodEntry struct {
	Instruction string  `toml:"instruction" default:"Nod"`
	Threshold   float64 `toml:"threshold" default:"1.5"`
}

type smileEntry struct {
	Instruction string  `toml:"instruction" default:"Smile"`
	Threshold   float64 `toml:"threshold" default:"0.7"`
}

// LoadCatalog reads a challenge profile. An empty path returns the default
// catalog.
func LoadCatalog(path string) (*liveness.Catalog, error) {
	if path == "" {
		return liveness.DefaultCatalog(), nil
	}

	var p ChallengeProfile
	defaults.SetDefaults(&p)
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("decode challenge profile %s: %w", path, err)
	}
	return p.Catalog()
}

// ParseCatalog decodes a profile from TOML text.
func ParseCatalog(data string) (*liveness.Catalog, error) {
	var p ChallengeProfile
	defaults.SetDefaults(&p)
	if _, err := toml.Decode(data, &p); err != nil {
		return nil, fmt.Errorf("decode challenge profile: %w", err)
	}
	return p.Catalog()
}

// Catalog builds the catalog in profile order.
func (p ChallengeProfile) Catalog() (*liveness.Catalog, error) {
	all := map[liveness.ChallengeKind]liveness.Challenge{
		liveness.Blink:         {Kind: liveness.Blink, Instruction: p.Blink.Instruction, Threshold: p.Blink.Threshold},
		liveness.TurnHeadLeft:  {Kind: liveness.TurnHeadLeft, Instruction: p.TurnHeadLeft.Instruction, Threshold: p.TurnHeadLeft.Threshold},
		liveness.TurnHeadRight: {Kind: liveness.TurnHeadRight, Instruction: p.TurnHeadRight.Instruction, Threshold: p.TurnHeadRight.Threshold},
		liveness.Nod:           {Kind: liveness.Nod, Instruction: p.Nod.Instruction, Threshold: p.Nod.Threshold},
		liveness.Smile:         {Kind: liveness.Smile, Instruction: p.Smile.Instruction, Threshold: p.Smile.Threshold},
	}

	order := liveness.Kinds
	if len(p.Order) > 0 {
		order = make([]liveness.ChallengeKind, len(p.Order))
		for i, k := range p.Order {
			order[i] = liveness.ChallengeKind(k)
		}
	}

	entries := make([]liveness.Challenge, 0, len(order))
	for _, k := range order {
		ch, ok := all[k]
		if !ok {
			return nil, fmt.Errorf("challenge profile: %w: %q", liveness.ErrUnknownChallenge, k)
		}
		entries = append(entries, ch)
	}

	c, err := liveness.NewCatalog(entries)
	if err != nil {
		return nil, fmt.Errorf("challenge profile: %w", err)
	}
	return c, nil
}
