package machine

import (
	"fmt"
	"github.com/go-errors/errors"
)

// Distance is a ranging result in millimetres.
type Distance uint16

// Position names a sensor slot along the travel path.
type Position int

const (
	Front Position = iota
	Mid
	Rear
)

func (p Position) String() string {
	switch p {
	case Front:
		return "front"
	case Mid:
		return "mid"
	case Rear:
		return "rear"
	default:
		return fmt.Sprintf("position(%d)", int(p))
	}
}

// ParsePosition accepts the names printed by Position.String.
func ParsePosition(s string) (Position, error) {
	switch s {
	case "front":
		return Front, nil
	case "mid":
		return Mid, nil
	case "rear":
		return Rear, nil
	default:
		return 0, errors.Errorf("unknown sensor position %q", s)
	}
}

func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Position) UnmarshalText(text []byte) error {
	v, err := ParsePosition(string(text))
	if err != nil {
		return err
	}

	*p = v

	return nil
}

// Distances holds one sample per sensor taken in the same cycle.
type Distances struct {
	Front Distance `json:"front"`
	Mid   Distance `json:"mid"`
	Rear  Distance `json:"rear"`
}

// Binding records which select line and bus address a sensor answers on.
// Bindings are fixed once bring-up completes.
type Binding struct {
	Sensor     Position `json:"sensor"`
	SelectLine string   `json:"select_line"`
	Address    uint16   `json:"address"`
}

type Machine interface {
	Start() error
	Stop() error
	ReadDistances() (Distances, error)
	Bindings() []Binding
}
