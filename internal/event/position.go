package event

import (
	"fmt"
	"strings"
)

// Position is the direction a participant wagers on.
type Position uint8

const (
	PositionUnknown Position = iota
	PositionBull             // price rises
	PositionBear             // price falls
)

func (p Position) String() string {
	switch p {
	case PositionBull:
		return "bull"
	case PositionBear:
		return "bear"
	default:
		return "unknown"
	}
}

func (p Position) Valid() bool {
	return p == PositionBull || p == PositionBear
}

// ParsePosition accepts "bull"/"bear" in any case.
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bull":
		return PositionBull, nil
	case "bear":
		return PositionBear, nil
	default:
		return PositionUnknown, fmt.Errorf("unknown position %q", s)
	}
}

func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Position) UnmarshalText(b []byte) error {
	v, err := ParsePosition(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
