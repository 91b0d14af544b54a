package machine

import (
	"github.com/drobo-robotics/poled/vl53l1x"
	"github.com/go-errors/errors"
	"periph.io/x/conn/v3/gpio"
	"strings"
)

// Line is a digital output that powers or selects one sensor.
type Line interface {
	Out(l gpio.Level) error
	String() string
}

// Sensor is the subset of the ranging driver used by bring-up and polling.
type Sensor interface {
	SoftReset() error
	Init() error
	SetAddress(addr uint16) error
	StartRanging(mode vl53l1x.DistanceMode) error
	ReadDistance() (uint16, error)
}

// SelectMode controls how select lines behave while sensors are brought up.
type SelectMode int

const (
	// Exclusive drives every other line low before asserting the next one,
	// so no two lines are ever high during bring-up. All lines are asserted
	// once every sensor has its final address.
	Exclusive SelectMode = iota

	// Cumulative leaves the lines of configured sensors high. It is
	// required when the lines drive XSHUT: dropping one powers the device
	// down and it returns on the default address.
	Cumulative
)

func (m SelectMode) String() string {
	switch m {
	case Exclusive:
		return "exclusive"
	case Cumulative:
		return "cumulative"
	default:
		return "invalid"
	}
}

func ParseSelectMode(s string) (SelectMode, error) {
	switch strings.ToLower(s) {
	case "exclusive":
		return Exclusive, nil
	case "cumulative":
		return Cumulative, nil
	default:
		return 0, errors.Errorf("unknown select mode %q", s)
	}
}

// Slot ties a sensor to its select line and the address it should end up on.
// A zero Address keeps the factory default.
type Slot struct {
	Position Position
	Line     Line
	Sensor   Sensor
	Address  uint16
}

// BringUpConfig describes one bring-up run. Slots are configured in order.
type BringUpConfig struct {
	Slots        []Slot
	SelectMode   SelectMode
	DistanceMode vl53l1x.DistanceMode
	Logger       Logger
}

// ValidateOrder checks that order names every sensor exactly once.
func ValidateOrder(order []Position) error {
	seen := make(map[Position]bool)

	for _, p := range order {
		if p != Front && p != Mid && p != Rear {
			return errors.Errorf("unknown sensor %v in bring-up order", p)
		}
		if seen[p] {
			return errors.Errorf("%v sensor appears twice in bring-up order", p)
		}
		seen[p] = true
	}

	if len(seen) != 3 {
		return errors.Errorf("bring-up order must name front, mid and rear, got %v", order)
	}

	return nil
}

// ValidateSlots checks that every position appears once and that the
// resulting addresses cannot collide on the shared bus. Only the last slot
// may keep the default address, because every earlier sensor still shares
// the default slot with the ones that follow it.
func ValidateSlots(slots []Slot) error {
	if len(slots) == 0 {
		return errors.New("no sensors to bring up")
	}

	positions := make(map[Position]bool)
	addresses := make(map[uint16]Position)

	for i, slot := range slots {
		if slot.Line == nil || slot.Sensor == nil {
			return errors.Errorf("%v sensor is missing its line or driver", slot.Position)
		}

		if positions[slot.Position] {
			return errors.Errorf("%v sensor configured twice", slot.Position)
		}
		positions[slot.Position] = true

		addr := slot.Address
		if addr == 0 {
			if i != len(slots)-1 {
				return errors.Errorf("%v sensor would keep the default address but is not last in the bring-up order", slot.Position)
			}
			addr = vl53l1x.DefaultAddress
		} else if addr == vl53l1x.DefaultAddress && i != len(slots)-1 {
			return errors.Errorf("%v sensor cannot be assigned the default address %#02x", slot.Position, addr)
		}

		if other, ok := addresses[addr]; ok {
			return errors.Errorf("%v and %v sensors share address %#02x", other, slot.Position, addr)
		}
		addresses[addr] = slot.Position
	}

	return nil
}

// BringUp brings every sensor onto the shared bus without address
// collisions and starts continuous ranging. Any failure is returned as is;
// the caller cannot proceed without all sensors ranging.
func BringUp(config *BringUpConfig) ([]Binding, error) {
	log := config.Logger
	if log == nil {
		log = noopLogger{}
	}

	if err := ValidateSlots(config.Slots); err != nil {
		return nil, err
	}

	// Start from a known state with every sensor deselected.
	for _, slot := range config.Slots {
		if err := slot.Line.Out(gpio.Low); err != nil {
			return nil, errors.Errorf("Could not deassert %v: %v", slot.Line, err)
		}
	}

	bindings := make([]Binding, 0, len(config.Slots))

	for i, slot := range config.Slots {
		if config.SelectMode == Exclusive && i > 0 {
			prev := config.Slots[i-1]
			if err := prev.Line.Out(gpio.Low); err != nil {
				return nil, errors.Errorf("Could not deassert %v: %v", prev.Line, err)
			}
		}

		log.Debugf("Selecting %v sensor on %v", slot.Position, slot.Line)

		if err := slot.Line.Out(gpio.High); err != nil {
			return nil, errors.Errorf("Could not assert %v for %v sensor: %v", slot.Line, slot.Position, err)
		}

		if err := slot.Sensor.SoftReset(); err != nil {
			return nil, errors.Errorf("Could not reset %v sensor: %v", slot.Position, err)
		}

		if err := slot.Sensor.Init(); err != nil {
			return nil, errors.Errorf("Could not init %v sensor: %v", slot.Position, err)
		}

		addr := vl53l1x.DefaultAddress
		if slot.Address != 0 && slot.Address != vl53l1x.DefaultAddress {
			if err := slot.Sensor.SetAddress(slot.Address); err != nil {
				return nil, errors.Errorf("Could not readdress %v sensor: %v", slot.Position, err)
			}

			if err := slot.Sensor.Init(); err != nil {
				return nil, errors.Errorf("Could not init %v sensor at %#02x: %v", slot.Position, slot.Address, err)
			}

			addr = slot.Address
		}

		if err := slot.Sensor.StartRanging(config.DistanceMode); err != nil {
			return nil, errors.Errorf("Could not start ranging on %v sensor: %v", slot.Position, err)
		}

		log.Infof("Brought up %v sensor at %#02x in %v mode", slot.Position, addr, config.DistanceMode)

		bindings = append(bindings, Binding{
			Sensor:     slot.Position,
			SelectLine: slot.Line.String(),
			Address:    addr,
		})
	}

	if config.SelectMode == Exclusive {
		for _, slot := range config.Slots {
			if err := slot.Line.Out(gpio.High); err != nil {
				return nil, errors.Errorf("Could not assert %v: %v", slot.Line, err)
			}
		}
	}

	return bindings, nil
}
