// Package phase holds the developmental phase state machine and the single
// coefficient table every other component reads its phase-dependent
// behavior from.
package phase

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPhase is returned when a phase name cannot be parsed.
var ErrInvalidPhase = errors.New("invalid phase")

// Phase is the active developmental stage.
type Phase int

const (
	Initialization Phase = iota
	Bloom
	Pruning
	Resonance
	Stable
)

// Count is the number of phases; phase ordinals lie in [0, Count).
const Count = 5

var names = [Count]string{"initialization", "bloom", "pruning", "resonance", "stable"}

// All returns every phase in ordinal order.
func All() []Phase {
	return []Phase{Initialization, Bloom, Pruning, Resonance, Stable}
}

// String returns the lower-case phase name.
func (p Phase) String() string {
	if p < 0 || int(p) >= Count {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return names[p]
}

// Valid reports whether p is one of the five known phases.
func (p Phase) Valid() bool {
	return p >= 0 && int(p) < Count
}

// ParsePhase parses a phase name, case-insensitively.
func ParsePhase(s string) (Phase, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == name {
			return Phase(i), nil
		}
	}
	return Initialization, fmt.Errorf("%w: %q", ErrInvalidPhase, s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPhase, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
